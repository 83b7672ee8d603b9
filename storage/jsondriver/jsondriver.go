// Package jsondriver is a concrete storage driver implementing every
// capability of registry.DriverAPI over a single JSON file on disk: a
// whole-file in-memory mirror, guarded by an in-process mutex and a
// cross-process flock lock on a sibling ".lock" file, flushed to a temp
// file and renamed into place on every write.
package jsondriver

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"dlite/errors"
	"dlite/registry"
)

// Name is the driver name this package registers itself under.
const Name = "json"

type fileFormat struct {
	Entities  map[string]*registry.EntitySchema `json:"entities"`
	Instances map[string]*instanceRecord        `json:"instances"`
}

type instanceRecord struct {
	MetaURI    string                 `json:"meta_uri"`
	DataName   string                 `json:"data_name,omitempty"`
	Dimensions map[string]int         `json:"dimensions"`
	Properties map[string]interface{} `json:"properties"`
}

func newFileFormat() *fileFormat {
	return &fileFormat{
		Entities:  make(map[string]*registry.EntitySchema),
		Instances: make(map[string]*instanceRecord),
	}
}

// store is the StorageHandle this driver hands back from Open.
type store struct {
	path     string
	mu       sync.RWMutex
	fileLock *flock.Flock
	data     *fileFormat
	readonly bool
}

// dataModelHandle is the DataModelHandle this driver hands back from
// DataModel: just the uuid, since every read/write goes back through
// the owning store's in-memory map.
type dataModelHandle struct {
	uuid string
}

func parseReadonly(options string) bool {
	for _, field := range strings.Split(options, ",") {
		if strings.TrimSpace(field) == "readonly" {
			return true
		}
	}
	return false
}

// Open loads uri (a filesystem path) into memory, creating an empty
// store if the file does not yet exist. An options string containing
// "readonly" skips taking the cross-process lock and disables flush.
func Open(uri, options string) (registry.StorageHandle, error) {
	s := &store{path: uri, data: newFileFormat(), readonly: parseReadonly(options)}

	if !s.readonly {
		s.fileLock = flock.New(uri + ".lock")
		locked, err := s.fileLock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire lock on %s: %w", uri, err)
		}
		if !locked {
			return nil, fmt.Errorf("storage %q is locked by another process", uri)
		}
	}

	raw, err := os.ReadFile(uri)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		if s.fileLock != nil {
			_ = s.fileLock.Unlock()
		}
		return nil, err
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, s.data); err != nil {
		if s.fileLock != nil {
			_ = s.fileLock.Unlock()
		}
		return nil, fmt.Errorf("parse %s: %w", uri, err)
	}
	return s, nil
}

func (s *store) flush() error {
	if s.readonly {
		return nil
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Close flushes pending changes and releases the store's lock.
func Close(h registry.StorageHandle) error {
	s := h.(*store)
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.flush()
	if s.fileLock != nil {
		if uerr := s.fileLock.Unlock(); err == nil {
			err = uerr
		}
	}
	return err
}

func (s *store) record(uuid string, create bool) (*instanceRecord, error) {
	rec, ok := s.data.Instances[uuid]
	if !ok {
		if !create {
			return nil, errors.Diagnose(errors.ErrAbsentMember, "no instance record for %q", uuid)
		}
		rec = &instanceRecord{Dimensions: map[string]int{}, Properties: map[string]interface{}{}}
		s.data.Instances[uuid] = rec
	}
	return rec, nil
}

// DataModel binds a handle to uuid within h. It does not require a
// record to already exist: reads against a never-written uuid fail with
// ErrAbsentMember, writes create the record lazily.
func DataModel(h registry.StorageHandle, uuid string) (registry.DataModelHandle, error) {
	return &dataModelHandle{uuid: uuid}, nil
}

// DataModelFree is a no-op: this driver holds no handle-scoped resources
// beyond the owning store's map entry.
func DataModelFree(h registry.StorageHandle, dm registry.DataModelHandle) error {
	return nil
}

func GetMetadata(h registry.StorageHandle, dm registry.DataModelHandle) (string, error) {
	s, d := h.(*store), dm.(*dataModelHandle)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.record(d.uuid, false)
	if err != nil {
		return "", err
	}
	return rec.MetaURI, nil
}

func SetMetadata(h registry.StorageHandle, dm registry.DataModelHandle, metadataURI string) error {
	s, d := h.(*store), dm.(*dataModelHandle)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.record(d.uuid, true)
	if err != nil {
		return err
	}
	rec.MetaURI = metadataURI
	return s.flush()
}

func GetDimensionSize(h registry.StorageHandle, dm registry.DataModelHandle, name string) (int, error) {
	s, d := h.(*store), dm.(*dataModelHandle)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.record(d.uuid, false)
	if err != nil {
		return 0, err
	}
	size, ok := rec.Dimensions[name]
	if !ok {
		return 0, errors.Diagnose(errors.ErrAbsentMember, "instance %q has no bound dimension %q", d.uuid, name)
	}
	return size, nil
}

func SetDimensionSize(h registry.StorageHandle, dm registry.DataModelHandle, name string, size int) error {
	s, d := h.(*store), dm.(*dataModelHandle)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.record(d.uuid, true)
	if err != nil {
		return err
	}
	rec.Dimensions[name] = size
	return s.flush()
}

func HasDimension(h registry.StorageHandle, dm registry.DataModelHandle, name string) bool {
	s, d := h.(*store), dm.(*dataModelHandle)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.record(d.uuid, false)
	if err != nil {
		return false
	}
	_, ok := rec.Dimensions[name]
	return ok
}

// GetProperty returns the stored value for name. Scalar properties
// (shape == nil) are returned as-is; array properties are returned as
// the flat []interface{} the driver stored them as. Note a real caveat
// of this reference driver: encoding/json decodes every JSON number as
// float64, so an int or uint property round-tripped through this driver
// comes back widened to float64 rather than its original Go type.
func GetProperty(h registry.StorageHandle, dm registry.DataModelHandle, name string, shape []int) (interface{}, error) {
	s, d := h.(*store), dm.(*dataModelHandle)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.record(d.uuid, false)
	if err != nil {
		return nil, err
	}
	v, ok := rec.Properties[name]
	if !ok {
		return nil, errors.Diagnose(errors.ErrAbsentMember, "instance %q has no value for property %q", d.uuid, name)
	}
	if len(shape) == 0 {
		return v, nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, errors.Diagnose(errors.ErrSchema, "property %q: stored value is not an array", name)
	}
	return raw, nil
}

func SetProperty(h registry.StorageHandle, dm registry.DataModelHandle, name string, value interface{}) error {
	s, d := h.(*store), dm.(*dataModelHandle)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.record(d.uuid, true)
	if err != nil {
		return err
	}
	rec.Properties[name] = value
	return s.flush()
}

func HasProperty(h registry.StorageHandle, dm registry.DataModelHandle, name string) bool {
	s, d := h.(*store), dm.(*dataModelHandle)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.record(d.uuid, false)
	if err != nil {
		return false
	}
	_, ok := rec.Properties[name]
	return ok
}

func GetDataName(h registry.StorageHandle, dm registry.DataModelHandle) (string, error) {
	s, d := h.(*store), dm.(*dataModelHandle)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.record(d.uuid, false)
	if err != nil {
		return "", err
	}
	return rec.DataName, nil
}

func SetDataName(h registry.StorageHandle, dm registry.DataModelHandle, name string) error {
	s, d := h.(*store), dm.(*dataModelHandle)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.record(d.uuid, true)
	if err != nil {
		return err
	}
	rec.DataName = name
	return s.flush()
}

func GetEntity(h registry.StorageHandle, uri string) (*registry.EntitySchema, error) {
	s := h.(*store)
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := s.data.Entities[uri]
	if !ok {
		return nil, errors.Diagnose(errors.ErrAbsentMember, "no entity schema for %q", uri)
	}
	return schema, nil
}

func SetEntity(h registry.StorageHandle, schema *registry.EntitySchema) error {
	s := h.(*store)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Entities[schema.URI] = schema
	return s.flush()
}

// GetUUIDs returns every instance uuid currently recorded in h, sorted
// for deterministic iteration.
func GetUUIDs(h registry.StorageHandle) ([]string, error) {
	s := h.(*store)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data.Instances))
	for uuid := range s.data.Instances {
		out = append(out, uuid)
	}
	sort.Strings(out)
	return out, nil
}

// Register installs this driver's DriverAPI into reg under Name.
// Drivers become visible to a registry only when a caller explicitly
// registers them, never via an init() side effect.
func Register(reg *registry.Registry) error {
	return reg.Register(&registry.DriverAPI{
		Name:             Name,
		Open:             Open,
		Close:            Close,
		DataModel:        DataModel,
		DataModelFree:    DataModelFree,
		GetMetadata:      GetMetadata,
		GetDimensionSize: GetDimensionSize,
		GetProperty:      GetProperty,
		GetUUIDs:         GetUUIDs,
		SetMetadata:      SetMetadata,
		SetDimensionSize: SetDimensionSize,
		SetProperty:      SetProperty,
		HasDimension:     HasDimension,
		HasProperty:      HasProperty,
		GetDataName:      GetDataName,
		SetDataName:      SetDataName,
		GetEntity:        GetEntity,
		SetEntity:        SetEntity,
	})
}
