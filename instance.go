package dlite

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"strings"

	"dlite/errors"
	"dlite/identity"
	"dlite/typesystem"
)

// ArrayValue is the runtime representation of a property whose NDims is
// greater than zero: its shape (one extent per dimension the property's
// Dims reference, in declaration order) and its elements in C
// (row-major) order, homogeneous in the property's declared Type.
type ArrayValue struct {
	Shape  []int
	Values []interface{}
}

// arrayStorage is the heap buffer an array (or scalar string-pointer)
// property's handle slot in an instance's block refers to.
type arrayStorage struct {
	shape  []int
	values []interface{}
}

// Instance is a single allocated block conforming to an Entity. Its
// byte layout is entirely determined by Entity: a header, one size slot
// per dimension, one inline-or-pointer slot per property, and an
// optional relations slot.
type Instance struct {
	UUID   string
	URI    string // set only when the id that produced UUID was name-derived (v5)
	Entity *Entity
	Dims   []int

	buffer []byte
	arrays map[int]*arrayStorage
}

// shapeOf computes an array property's runtime shape from the owning
// instance's bound dimension sizes.
func shapeOf(dims []int, prop Property) []int {
	shape := make([]int, len(prop.Dims))
	for i, d := range prop.Dims {
		shape[i] = dims[d]
	}
	return shape
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func zeroValue(tag typesystem.Tag) interface{} {
	switch tag {
	case typesystem.Bool:
		return false
	case typesystem.Int:
		return int64(0)
	case typesystem.Uint:
		return uint64(0)
	case typesystem.Float:
		return float64(0)
	case typesystem.String, typesystem.StringPointer:
		return ""
	case typesystem.Blob:
		return []byte(nil)
	default:
		return nil
	}
}

// CreateInstance allocates a zero-initialized instance of entity, bound
// to dims (one size per entity.Dimensions, in order), with identity
// derived from id: empty id gets a random uuid, a canonical uuid passes
// through, and any other name derives a deterministic v5 uuid and is
// kept as the instance uri.
func CreateInstance(entity *Entity, dims []int, id string) (*Instance, error) {
	if len(dims) != len(entity.Dimensions) {
		return nil, errors.Diagnose(errors.ErrSchema,
			"entity %q declares %d dimensions, got %d sizes", entity.URI, len(entity.Dimensions), len(dims))
	}
	for i, d := range dims {
		if d < 0 {
			return nil, errors.Diagnose(errors.ErrSchema, "dimension %q size must be non-negative, got %d",
				entity.Dimensions[i].Name, d)
		}
	}

	canonical, version, err := identity.GetUUID(id)
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		UUID:   canonical,
		Entity: entity,
		Dims:   append([]int(nil), dims...),
		buffer: make([]byte, entity.Size),
		arrays: make(map[int]*arrayStorage),
	}
	if version == identity.VersionV5 {
		inst.URI = id
	}

	copy(inst.buffer[0:], []byte(canonical))

	for i, d := range inst.Dims {
		binary.LittleEndian.PutUint64(inst.buffer[entity.DimOffset+i*8:], uint64(d))
	}

	for i, prop := range entity.Properties {
		if err := inst.allocateProperty(i, prop); err != nil {
			FreeInstance(inst)
			return nil, err
		}
	}

	entity.Incref()
	return inst, nil
}

func (inst *Instance) allocateProperty(index int, prop Property) error {
	if prop.NDims == 0 {
		if prop.Type == typesystem.StringPointer {
			inst.arrays[index] = &arrayStorage{values: []interface{}{""}}
			inst.writeHandle(index, uint64(index+1))
		}
		// Other scalar kinds live inline in the zeroed buffer already.
		return nil
	}

	shape := shapeOf(inst.Dims, prop)
	nmemb := product(shape)
	values := make([]interface{}, nmemb)
	zero := zeroValue(prop.Type)
	for i := range values {
		values[i] = zero
	}
	if nmemb > 0 {
		inst.arrays[index] = &arrayStorage{shape: shape, values: values}
		inst.writeHandle(index, uint64(index+1))
	}
	return nil
}

func (inst *Instance) writeHandle(propIndex int, handle uint64) {
	off := inst.Entity.PropOffsets[propIndex]
	binary.LittleEndian.PutUint64(inst.buffer[off:], handle)
}

// FreeInstance releases inst's resources and decrements its entity's
// refcount. Go's garbage collector reclaims the heap arrays and owned
// strings this instance held; the observable contract is the entity
// refcount decrement.
func FreeInstance(inst *Instance) {
	if inst == nil || inst.Entity == nil {
		return
	}
	inst.arrays = nil
	inst.buffer = nil
	inst.Entity.Decref()
	inst.Entity = nil
}

// GetDimensionSize returns the bound size of the dimension named name.
func (inst *Instance) GetDimensionSize(name string) (int, error) {
	idx, err := inst.Entity.GetDimensionIndex(name)
	if err != nil {
		return 0, err
	}
	return inst.Dims[idx], nil
}

// GetDimensionSizeByIndex returns the bound size of dimension index.
func (inst *Instance) GetDimensionSizeByIndex(index int) (int, error) {
	if index < 0 || index >= len(inst.Dims) {
		return 0, errors.Diagnose(errors.ErrAbsentMember,
			"entity %q has no dimension at index %d", inst.Entity.URI, index)
	}
	return inst.Dims[index], nil
}

// GetProperty returns the property's current value: a Go scalar
// (bool/int64/uint64/float64/string/[]byte) when NDims == 0, or an
// *ArrayValue otherwise. For array properties the returned Values slice
// aliases the instance's own heap storage: mutating it mutates the
// instance without going through SetProperty.
func (inst *Instance) GetProperty(name string) (interface{}, error) {
	idx, err := inst.Entity.GetPropertyIndex(name)
	if err != nil {
		return nil, err
	}
	return inst.GetPropertyByIndex(idx)
}

// GetPropertyByIndex is GetProperty addressed by property index.
func (inst *Instance) GetPropertyByIndex(idx int) (interface{}, error) {
	if idx < 0 || idx >= len(inst.Entity.Properties) {
		return nil, errors.Diagnose(errors.ErrAbsentMember,
			"entity %q has no property at index %d", inst.Entity.URI, idx)
	}
	prop := inst.Entity.Properties[idx]
	if prop.NDims > 0 {
		arr, ok := inst.arrays[idx]
		if !ok {
			return &ArrayValue{Shape: shapeOf(inst.Dims, prop)}, nil
		}
		return &ArrayValue{Shape: arr.shape, Values: arr.values}, nil
	}
	if prop.Type == typesystem.StringPointer {
		arr := inst.arrays[idx]
		return arr.values[0], nil
	}
	return inst.readScalar(prop, inst.Entity.PropOffsets[idx]), nil
}

func (inst *Instance) readScalar(prop Property, off int) interface{} {
	switch prop.Type {
	case typesystem.Bool:
		return inst.buffer[off] != 0
	case typesystem.Int:
		bits := readWidth(inst.buffer[off:], prop.Size)
		shift := uint(64 - 8*prop.Size)
		return int64(bits<<shift) >> shift // sign-extend narrow widths
	case typesystem.Uint:
		return readWidth(inst.buffer[off:], prop.Size)
	case typesystem.Float:
		bits := readWidth(inst.buffer[off:], prop.Size)
		if prop.Size == 4 {
			return float64(math.Float32frombits(uint32(bits)))
		}
		return math.Float64frombits(bits)
	case typesystem.String:
		end := off
		for end < off+prop.Size && inst.buffer[end] != 0 {
			end++
		}
		return string(inst.buffer[off:end])
	case typesystem.Blob:
		out := make([]byte, prop.Size)
		copy(out, inst.buffer[off:off+prop.Size])
		return out
	default:
		return nil
	}
}

// SetProperty replaces the property's value. Scalar values must match
// the property's declared Go representation; array values must be an
// *ArrayValue whose Shape matches the property's current runtime shape.
// For string-pointer properties (scalar or array) the setter stores
// independent owned copies of every string. Numeric values arriving
// from a driver in a widened form (a JSON number decodes as float64,
// a blob as a base64 string) are narrowed back to the property's
// declared type.
func (inst *Instance) SetProperty(name string, value interface{}) error {
	idx, err := inst.Entity.GetPropertyIndex(name)
	if err != nil {
		return err
	}
	return inst.SetPropertyByIndex(idx, value)
}

// SetPropertyByIndex is SetProperty addressed by property index.
func (inst *Instance) SetPropertyByIndex(idx int, value interface{}) error {
	if idx < 0 || idx >= len(inst.Entity.Properties) {
		return errors.Diagnose(errors.ErrAbsentMember,
			"entity %q has no property at index %d", inst.Entity.URI, idx)
	}
	prop := inst.Entity.Properties[idx]

	if prop.NDims > 0 {
		arr, ok := value.(*ArrayValue)
		if !ok {
			return errors.Diagnose(errors.ErrSchema, "property %q is an array; expected *ArrayValue, got %T", prop.Name, value)
		}
		expected := shapeOf(inst.Dims, prop)
		if len(arr.Shape) != len(expected) {
			return errors.Diagnose(errors.ErrSchema, "property %q: expected %d-dimensional shape, got %d",
				prop.Name, len(expected), len(arr.Shape))
		}
		for i := range expected {
			if arr.Shape[i] != expected[i] {
				return errors.Diagnose(errors.ErrSchema, "property %q: shape mismatch at axis %d: expected %d, got %d",
					prop.Name, i, expected[i], arr.Shape[i])
			}
		}
		if len(arr.Values) != product(expected) {
			return errors.Diagnose(errors.ErrSchema, "property %q: expected %d elements, got %d",
				prop.Name, product(expected), len(arr.Values))
		}
		owned := make([]interface{}, len(arr.Values))
		for i, v := range arr.Values {
			owned[i] = ownedCopy(prop.Type, coerceValue(prop.Type, v))
		}
		if existing, ok := inst.arrays[idx]; ok {
			existing.shape = expected
			existing.values = owned
		} else if len(owned) > 0 {
			inst.arrays[idx] = &arrayStorage{shape: expected, values: owned}
			inst.writeHandle(idx, uint64(idx+1))
		}
		return nil
	}

	if prop.Type == typesystem.StringPointer {
		s, ok := value.(string)
		if !ok {
			return errors.Diagnose(errors.ErrSchema, "property %q expects a string, got %T", prop.Name, value)
		}
		inst.arrays[idx].values[0] = strings.Clone(s)
		return nil
	}

	return inst.writeScalar(idx, prop, coerceValue(prop.Type, value))
}

func ownedCopy(tag typesystem.Tag, v interface{}) interface{} {
	if tag == typesystem.StringPointer || tag == typesystem.String {
		if s, ok := v.(string); ok {
			return strings.Clone(s)
		}
	}
	return v
}

// coerceValue narrows a value that arrives in the widened representation
// a driver's wire format forces on it: encoding/json has one number type
// (float64) and encodes []byte as a base64 string, so an int, uint,
// float32-width or blob property round-tripped through such a driver
// needs converting back before it can be stored. Values already in the
// declared representation pass through untouched; anything else is left
// for writeScalar's type check to reject.
func coerceValue(tag typesystem.Tag, v interface{}) interface{} {
	switch tag {
	case typesystem.Int:
		switch n := v.(type) {
		case int:
			return int64(n)
		case float64:
			if n == math.Trunc(n) {
				return int64(n)
			}
		}
	case typesystem.Uint:
		switch n := v.(type) {
		case int:
			if n >= 0 {
				return uint64(n)
			}
		case int64:
			if n >= 0 {
				return uint64(n)
			}
		case float64:
			if n >= 0 && n == math.Trunc(n) {
				return uint64(n)
			}
		}
	case typesystem.Float:
		switch n := v.(type) {
		case int:
			return float64(n)
		case int64:
			return float64(n)
		case float32:
			return float64(n)
		}
	case typesystem.Blob:
		if s, ok := v.(string); ok {
			if b, err := base64.StdEncoding.DecodeString(s); err == nil {
				return b
			}
		}
	}
	return v
}

func (inst *Instance) writeScalar(idx int, prop Property, value interface{}) error {
	off := inst.Entity.PropOffsets[idx]
	switch prop.Type {
	case typesystem.Bool:
		b, ok := value.(bool)
		if !ok {
			return errors.Diagnose(errors.ErrSchema, "property %q expects bool, got %T", prop.Name, value)
		}
		if b {
			inst.buffer[off] = 1
		} else {
			inst.buffer[off] = 0
		}
	case typesystem.Int:
		i, ok := value.(int64)
		if !ok {
			return errors.Diagnose(errors.ErrSchema, "property %q expects int64, got %T", prop.Name, value)
		}
		writeWidth(inst.buffer[off:], prop.Size, uint64(i))
	case typesystem.Uint:
		u, ok := value.(uint64)
		if !ok {
			return errors.Diagnose(errors.ErrSchema, "property %q expects uint64, got %T", prop.Name, value)
		}
		writeWidth(inst.buffer[off:], prop.Size, u)
	case typesystem.Float:
		f, ok := value.(float64)
		if !ok {
			return errors.Diagnose(errors.ErrSchema, "property %q expects float64, got %T", prop.Name, value)
		}
		if prop.Size == 4 {
			writeWidth(inst.buffer[off:], 4, uint64(math.Float32bits(float32(f))))
		} else {
			writeWidth(inst.buffer[off:], 8, math.Float64bits(f))
		}
	case typesystem.String:
		s, ok := value.(string)
		if !ok {
			return errors.Diagnose(errors.ErrSchema, "property %q expects string, got %T", prop.Name, value)
		}
		n := copy(inst.buffer[off:off+prop.Size-1], s)
		for i := off + n; i < off+prop.Size; i++ {
			inst.buffer[i] = 0
		}
	case typesystem.Blob:
		b, ok := value.([]byte)
		if !ok {
			return errors.Diagnose(errors.ErrSchema, "property %q expects []byte, got %T", prop.Name, value)
		}
		if len(b) != prop.Size {
			return errors.Diagnose(errors.ErrSchema, "property %q expects %d bytes, got %d", prop.Name, prop.Size, len(b))
		}
		copy(inst.buffer[off:off+prop.Size], b)
	default:
		return errors.Diagnose(errors.ErrSchema, "unknown type tag for property %q", prop.Name)
	}
	return nil
}

func readWidth(b []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func writeWidth(b []byte, size int, v uint64) {
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}
