// Package typesystem is a pure function library over (Tag, size): the
// sole mechanism for deriving entity layout. Every dimension offset,
// property offset and relation offset of an ordinary entity in the dlite
// package is computed by sweeping members in declaration order through
// MemberOffset, which in turn is defined entirely in terms of Alignment.
// The meta-entity's layout is fixed arithmetic over the header size
// instead of a sweep.
package typesystem

import "dlite/errors"

// Tag is the closed enumeration of primitive kinds a property or
// dimension slot can hold.
type Tag int

const (
	Blob Tag = iota
	Bool
	Int
	Uint
	Float
	String        // fixed-width, inline, NUL-terminated
	StringPointer // owned variable-length string, stored by reference
)

// storageForm describes how a value of a given Tag is physically held
// inside an instance block: inline bytes, or a pointer to a heap array.
type storageForm int

const (
	formInline storageForm = iota
	formPointer
)

// pointerSize is the width of a stored pointer/handle on the target
// platform. DLite instances are portable byte blocks, not raw process
// pointers, so this is a fixed logical width rather than unsafe.Sizeof,
// matching the 8-byte handles the binary layout already commits to.
const pointerSize = 8

// PointerSize is the logical width, in bytes, of a stored pointer/handle
// slot. Exported so callers computing header layout can size a handle
// slot without hard-coding the width a second time.
const PointerSize = pointerSize

func formOf(tag Tag) storageForm {
	if tag == StringPointer {
		return formPointer
	}
	return formInline
}

// Name returns the stable, human-readable name of tag. It fails for
// unknown tag values, which can only arise from corrupt persisted
// schema data.
func Name(tag Tag) (string, error) {
	switch tag {
	case Blob:
		return "blob", nil
	case Bool:
		return "bool", nil
	case Int:
		return "int", nil
	case Uint:
		return "uint", nil
	case Float:
		return "float", nil
	case String:
		return "string", nil
	case StringPointer:
		return "string-pointer", nil
	default:
		return "", errors.Diagnose(errors.ErrSchema, "unknown type tag %d", int(tag))
	}
}

// ParseTag maps a persisted schema type string back to a Tag, failing
// for anything not in the closed enumeration.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "blob":
		return Blob, nil
	case "bool":
		return Bool, nil
	case "int":
		return Int, nil
	case "uint":
		return Uint, nil
	case "float":
		return Float, nil
	case "string":
		return String, nil
	case "string-pointer":
		return StringPointer, nil
	default:
		return 0, errors.Diagnose(errors.ErrSchema, "unrecognized type string %q", name)
	}
}

// Alignment returns the natural alignment, in bytes, for a stored value
// of the given tag/size: pointer alignment for string-pointer (it is
// always stored as a handle to a heap array, never inline), element
// alignment for numerics and blob, and 1 for inline fixed-width strings
// (a NUL-terminated byte run has no alignment requirement beyond byte).
func Alignment(tag Tag, size int) (int, error) {
	if formOf(tag) == formPointer {
		return pointerSize, nil
	}
	switch tag {
	case Bool:
		return 1, nil
	case String:
		return 1, nil
	case Blob:
		if size <= 0 {
			return 1, nil
		}
		return clampPow2(size), nil
	case Int, Uint, Float:
		if size <= 0 {
			return 0, errors.Diagnose(errors.ErrSchema, "numeric type requires a positive size, got %d", size)
		}
		return clampPow2(size), nil
	default:
		return 0, errors.Diagnose(errors.ErrSchema, "unknown type tag %d", int(tag))
	}
}

// clampPow2 returns the largest power of two that is <= size and <= 8:
// the natural alignment of any fixed-width numeric element DLite
// supports (1, 2, 4 or 8 byte words).
func clampPow2(size int) int {
	align := 1
	for align*2 <= size && align < 8 {
		align *= 2
	}
	return align
}

// Footprint returns the in-block byte footprint of a single runtime
// value of the given storage form: pointerSize for any property stored
// as a pointer-to-heap (any ndims > 0 property, or a scalar
// string-pointer), else the property's own declared size.
func Footprint(tag Tag, size int, ndims int) (int, error) {
	if ndims > 0 || tag == StringPointer {
		return pointerSize, nil
	}
	if size <= 0 {
		return 0, errors.Diagnose(errors.ErrSchema, "scalar property requires a positive size, got %d", size)
	}
	return size, nil
}

func alignUp(offset, align int) int {
	if align <= 1 {
		return offset
	}
	rem := offset % align
	if rem == 0 {
		return offset
	}
	return offset + (align - rem)
}

// MemberOffset returns the byte offset of the next member, given the
// previous member's offset and size, aligned to the natural alignment
// of (tag, size). Entity layout derivation is nothing but repeated
// calls to MemberOffset in declaration order.
func MemberOffset(prevOffset, prevSize int, tag Tag, size int) (int, error) {
	align, err := Alignment(tag, size)
	if err != nil {
		return 0, err
	}
	return alignUp(prevOffset+prevSize, align), nil
}

// IterateShape walks every index of an N-dimensional array with the
// given per-axis extents in C (row-major) order, calling visit once per
// element with its flat offset and its per-axis indices. dlite's
// nested->flat conversion (ArrayValueFromNested) is built on it; the
// flat->nested direction (ArrayValue.ToNested) does not use it and
// splits the flat values recursively instead.
func IterateShape(dims []int, visit func(flatIndex int, indices []int)) {
	total := 1
	for _, d := range dims {
		total *= d
	}
	if total <= 0 {
		return
	}
	indices := make([]int, len(dims))
	for flat := 0; flat < total; flat++ {
		visit(flat, indices)
		for axis := len(dims) - 1; axis >= 0; axis-- {
			indices[axis]++
			if indices[axis] < dims[axis] {
				break
			}
			indices[axis] = 0
		}
	}
}
