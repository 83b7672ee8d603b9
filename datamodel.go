package dlite

import (
	"dlite/errors"
	"dlite/identity"
	"dlite/registry"
	"dlite/typesystem"
)

// DataModel is the per-instance façade mediating typed transfers
// between an instance and a storage: a thin, typed wrapper around a
// driver's raw DataModelHandle that instance load/save in this package
// goes through rather than touching a registry.DriverAPI directly.
// LoadEntity, SaveEntity and ListUUIDs call the driver's entity and
// uuid capabilities directly instead.
type DataModel struct {
	storage *registry.Storage
	handle  registry.DataModelHandle
	UUID    string
}

// OpenDataModel binds a DataModel to id within storage. The driver
// always sees the canonical uuid derived from id; when id was a
// readable name, the storage is writable, and the driver supports data
// naming, the original name is persisted alongside the record so a
// later reader can recover it.
func OpenDataModel(storage *registry.Storage, id string) (*DataModel, error) {
	canonical, version, err := identity.GetUUID(id)
	if err != nil {
		return nil, err
	}
	h, err := storage.API.DataModel(storage.Handle, canonical)
	if err != nil {
		return nil, errors.Diagnose(errors.ErrDriverIO, "driver %q: open datamodel %q: %v", storage.API.Name, canonical, err)
	}
	dm := &DataModel{storage: storage, handle: h, UUID: canonical}
	if version == identity.VersionV5 && storage.Writable && storage.API.SetDataName != nil {
		if err := dm.SetDataName(id); err != nil {
			_ = dm.Close()
			return nil, err
		}
	}
	return dm, nil
}

// Close releases dm's driver-side handle.
func (dm *DataModel) Close() error {
	if err := dm.storage.API.DataModelFree(dm.storage.Handle, dm.handle); err != nil {
		return errors.Diagnose(errors.ErrDriverIO, "driver %q: free datamodel %q: %v", dm.storage.API.Name, dm.UUID, err)
	}
	return nil
}

// GetMetadata returns the uri of the entity this instance conforms to.
func (dm *DataModel) GetMetadata() (string, error) {
	uri, err := dm.storage.API.GetMetadata(dm.storage.Handle, dm.handle)
	if err != nil {
		return "", errors.Diagnose(errors.ErrDriverIO, "driver %q: get metadata %q: %v", dm.storage.API.Name, dm.UUID, err)
	}
	return uri, nil
}

// SetMetadata records the uri of the entity this instance conforms to.
func (dm *DataModel) SetMetadata(uri string) error {
	if dm.storage.API.SetMetadata == nil {
		return errors.MissingCapability(dm.storage.API.Name, "SetMetadata")
	}
	if err := dm.storage.API.SetMetadata(dm.storage.Handle, dm.handle, uri); err != nil {
		return errors.Diagnose(errors.ErrDriverIO, "driver %q: set metadata %q: %v", dm.storage.API.Name, dm.UUID, err)
	}
	return nil
}

// GetDimensionSize returns the persisted size bound to dimension name.
func (dm *DataModel) GetDimensionSize(name string) (int, error) {
	size, err := dm.storage.API.GetDimensionSize(dm.storage.Handle, dm.handle, name)
	if err != nil {
		return 0, errors.Diagnose(errors.ErrDriverIO, "driver %q: get dimension %q: %v", dm.storage.API.Name, name, err)
	}
	return size, nil
}

// SetDimensionSize persists the size bound to dimension name.
func (dm *DataModel) SetDimensionSize(name string, size int) error {
	if dm.storage.API.SetDimensionSize == nil {
		return errors.MissingCapability(dm.storage.API.Name, "SetDimensionSize")
	}
	if err := dm.storage.API.SetDimensionSize(dm.storage.Handle, dm.handle, name, size); err != nil {
		return errors.Diagnose(errors.ErrDriverIO, "driver %q: set dimension %q: %v", dm.storage.API.Name, name, err)
	}
	return nil
}

// HasDimension reports whether the driver records a binding for name.
// Drivers that do not implement the optional capability are treated as
// always answering true, since GetDimensionSize is required core.
func (dm *DataModel) HasDimension(name string) bool {
	if dm.storage.API.HasDimension == nil {
		return true
	}
	return dm.storage.API.HasDimension(dm.storage.Handle, dm.handle, name)
}

// HasProperty reports whether the driver records a value for name. See
// HasDimension for the fallback when the capability is absent.
func (dm *DataModel) HasProperty(name string) bool {
	if dm.storage.API.HasProperty == nil {
		return true
	}
	return dm.storage.API.HasProperty(dm.storage.Handle, dm.handle, name)
}

// GetDataName returns the driver's optional human-readable name for this
// instance's data.
func (dm *DataModel) GetDataName() (string, error) {
	if dm.storage.API.GetDataName == nil {
		return "", errors.MissingCapability(dm.storage.API.Name, "GetDataName")
	}
	name, err := dm.storage.API.GetDataName(dm.storage.Handle, dm.handle)
	if err != nil {
		return "", errors.Diagnose(errors.ErrDriverIO, "driver %q: get data name %q: %v", dm.storage.API.Name, dm.UUID, err)
	}
	return name, nil
}

// SetDataName sets the driver's optional human-readable name.
func (dm *DataModel) SetDataName(name string) error {
	if dm.storage.API.SetDataName == nil {
		return errors.MissingCapability(dm.storage.API.Name, "SetDataName")
	}
	if err := dm.storage.API.SetDataName(dm.storage.Handle, dm.handle, name); err != nil {
		return errors.Diagnose(errors.ErrDriverIO, "driver %q: set data name %q: %v", dm.storage.API.Name, dm.UUID, err)
	}
	return nil
}

// GetProperty returns prop's persisted value: a Go scalar when prop's
// NDims is zero, or an *ArrayValue of the given shape otherwise.
func (dm *DataModel) GetProperty(prop Property, shape []int) (interface{}, error) {
	raw, err := dm.storage.API.GetProperty(dm.storage.Handle, dm.handle, prop.Name, shape)
	if err != nil {
		return nil, errors.Diagnose(errors.ErrDriverIO, "driver %q: get property %q: %v", dm.storage.API.Name, prop.Name, err)
	}
	if prop.NDims == 0 {
		return raw, nil
	}
	flat, ok := raw.([]interface{})
	if !ok {
		return nil, errors.Diagnose(errors.ErrSchema, "driver %q: property %q: expected a flat array, got %T",
			dm.storage.API.Name, prop.Name, raw)
	}
	return &ArrayValue{Shape: append([]int(nil), shape...), Values: flat}, nil
}

// SetProperty persists prop's value: a Go scalar, or an *ArrayValue when
// prop's NDims is non-zero (its Values are handed to the driver flat, in
// row-major order).
func (dm *DataModel) SetProperty(prop Property, value interface{}) error {
	if dm.storage.API.SetProperty == nil {
		return errors.MissingCapability(dm.storage.API.Name, "SetProperty")
	}
	raw := value
	if prop.NDims > 0 {
		arr, ok := value.(*ArrayValue)
		if !ok {
			return errors.Diagnose(errors.ErrSchema, "property %q: expected *ArrayValue, got %T", prop.Name, value)
		}
		raw = arr.Values
	}
	if err := dm.storage.API.SetProperty(dm.storage.Handle, dm.handle, prop.Name, raw); err != nil {
		return errors.Diagnose(errors.ErrDriverIO, "driver %q: set property %q: %v", dm.storage.API.Name, prop.Name, err)
	}
	return nil
}

// ToNested expands v's flat, row-major Values into nested []interface{}
// slices, one level of nesting per axis in v.Shape.
func (v *ArrayValue) ToNested() interface{} {
	return buildNested(v.Shape, v.Values)
}

func buildNested(shape []int, flat []interface{}) interface{} {
	if len(shape) == 0 {
		if len(flat) > 0 {
			return flat[0]
		}
		return nil
	}
	if len(shape) == 1 {
		out := make([]interface{}, shape[0])
		copy(out, flat)
		return out
	}
	stride := 1
	for _, d := range shape[1:] {
		stride *= d
	}
	out := make([]interface{}, shape[0])
	for i := 0; i < shape[0]; i++ {
		out[i] = buildNested(shape[1:], flat[i*stride:(i+1)*stride])
	}
	return out
}

// ArrayValueFromNested flattens a nested []interface{} structure
// conforming to shape into a row-major *ArrayValue, driving the
// traversal with typesystem.IterateShape so the element order matches
// every other flat representation this package produces.
func ArrayValueFromNested(shape []int, nested interface{}) (*ArrayValue, error) {
	flat := make([]interface{}, product(shape))
	var walkErr error
	typesystem.IterateShape(shape, func(flatIndex int, indices []int) {
		if walkErr != nil {
			return
		}
		cur := nested
		for _, idx := range indices {
			s, ok := cur.([]interface{})
			if !ok || idx >= len(s) {
				walkErr = errors.Diagnose(errors.ErrSchema, "nested value does not match shape %v", shape)
				return
			}
			cur = s[idx]
		}
		flat[flatIndex] = cur
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return &ArrayValue{Shape: append([]int(nil), shape...), Values: flat}, nil
}
