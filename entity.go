// Package dlite is a typed instance/metadata runtime: dimensions,
// properties and entities that describe a class of self-describing
// instances, reference-counted metadata shared by every instance of an
// entity, and the load/save orchestration that flows typed property
// data through a pluggable storage driver.
package dlite

import (
	"dlite/errors"
	"dlite/identity"
	"dlite/typesystem"
)

// Dimension is a named symbolic size. Instances bind each dimension of
// their entity to a non-negative integer at creation.
type Dimension struct {
	Name        string
	Description string
}

// Property is a typed, possibly multi-dimensional field of an instance.
// Dims[k] indexes into the owning entity's Dimensions slice: the
// property is a rank-NDims array whose runtime shape is
// (instance.Dims[Dims[0]], instance.Dims[Dims[1]], ...). NDims == 0
// means a scalar.
type Property struct {
	Name        string
	Type        typesystem.Tag
	Size        int // element width in bytes
	NDims       int
	Dims        []int // indices into the owning entity's Dimensions
	Description string
	Unit        string
}

// effectiveAlignment returns the alignment a property of this shape
// occupies in an instance block: pointer alignment for any array
// property (ndims > 0) or scalar string-pointer, else its own natural
// element alignment. This is the one ndims-aware decision layered on
// top of typesystem's pure (tag, size) rules, since "is this stored as
// a pointer" depends on shape, not just type.
func (p Property) effectiveAlignment() (int, error) {
	if p.NDims > 0 {
		return typesystem.Alignment(typesystem.StringPointer, 0)
	}
	return typesystem.Alignment(p.Type, p.Size)
}

func (p Property) footprint() (int, error) {
	return typesystem.Footprint(p.Type, p.Size, p.NDims)
}

// MetaURI is the canonical uri of the singleton meta-entity. Entities
// loaded or created against this core always link to the one
// process-wide meta-entity value.
const MetaURI = "dlite/0.1/meta-entity"

// headerUUIDBytes is the fixed width of the inline uuid field in an
// instance's header: 36 canonical characters plus a NUL terminator.
const headerUUIDBytes = 37

// Entity describes a class of instances: its dimensions, properties,
// and the derived byte layout every instance of it shares. Entities
// are reference-counted and are themselves instances of the singleton
// meta-entity.
type Entity struct {
	UUID         string
	URI          string
	Description  string
	Meta         *Entity // nil only for the meta-entity itself
	Dimensions   []Dimension
	Properties   []Property
	HasRelations bool

	// Derived layout, computed once by postinit and never mutated
	// afterward.
	Size        int
	DimOffset   int
	PropOffsets []int
	RelOffset   int

	refcount int
}

// metaEntitySingleton is the pinned, never-freed schema describing
// entities themselves. It is created once by NewMetaEntity and shared
// by every Entity created in this process.
var metaEntitySingleton *Entity

// NewMetaEntity returns the process's singleton meta-entity, creating it
// on first call. Its refcount is pinned (Decref is a no-op on it), and
// Meta is nil: the metaclass graph terminates here instead of cycling.
func NewMetaEntity() *Entity {
	if metaEntitySingleton != nil {
		return metaEntitySingleton
	}
	m := &Entity{
		UUID: identity.MustCanonical(MetaURI),
		URI:  MetaURI,
		Dimensions: []Dimension{
			{Name: "ndimensions", Description: "number of dimensions declared on an entity"},
			{Name: "nproperties", Description: "number of properties declared on an entity"},
		},
		refcount: 1 << 30, // pinned: never reaches zero through ordinary incref/decref
	}
	// Meta-entity layout is fixed rather than swept, since it has no
	// properties of its own to iterate: header, then its two
	// meta-dimension slots.
	headerSize, err := headerFootprint()
	if err != nil {
		panic(err) // the header shape is fixed and can never fail to lay out
	}
	dimSlot, _ := typesystem.Footprint(typesystem.Int, 8, 0)
	m.DimOffset = headerSize
	m.RelOffset = headerSize + dimSlot*2
	m.Size = m.RelOffset
	metaEntitySingleton = m
	return m
}

func headerFootprint() (int, error) {
	// uuid[37] inline bytes, then a uri handle, then a meta handle.
	offset, err := typesystem.MemberOffset(0, 0, typesystem.String, headerUUIDBytes)
	if err != nil {
		return 0, err
	}
	uriSize, _ := typesystem.Footprint(typesystem.StringPointer, 0, 0)
	offset, err = typesystem.MemberOffset(offset, headerUUIDBytes, typesystem.StringPointer, 0)
	if err != nil {
		return 0, err
	}
	metaSize, _ := typesystem.Footprint(typesystem.Blob, typesystem.PointerSize, 0)
	offset, err = typesystem.MemberOffset(offset, uriSize, typesystem.Blob, typesystem.PointerSize)
	if err != nil {
		return 0, err
	}
	return offset + metaSize, nil
}

// NewEntity constructs an entity from its declared dimensions and
// properties, deep-copying both vectors so the caller's arrays may be
// transient. uri must already be in namespace/version/name form; the
// entity's uuid is derived from it via the v5 rule.
func NewEntity(uri, description string, dims []Dimension, props []Property) (*Entity, error) {
	if uri == "" {
		return nil, errors.Diagnose(errors.ErrSchema, "entity uri must not be empty")
	}
	for _, p := range props {
		for _, d := range p.Dims {
			if d < 0 || d >= len(dims) {
				return nil, errors.Diagnose(errors.ErrSchema,
					"property %q references dimension index %d out of range (entity has %d dimensions)",
					p.Name, d, len(dims))
			}
		}
		if len(p.Dims) != p.NDims {
			return nil, errors.Diagnose(errors.ErrSchema,
				"property %q declares ndims=%d but has %d dims entries", p.Name, p.NDims, len(p.Dims))
		}
	}

	e := &Entity{
		URI:         uri,
		Description: description,
		Dimensions:  append([]Dimension(nil), dims...),
		Properties:  make([]Property, len(props)),
	}
	for i, p := range props {
		p.Dims = append([]int(nil), p.Dims...)
		e.Properties[i] = p
	}

	canonical, _, err := identity.GetUUID(uri)
	if err != nil {
		return nil, err
	}
	e.UUID = canonical

	e.Meta = NewMetaEntity()
	e.Meta.Incref()

	if err := e.postinit(); err != nil {
		e.Meta.Decref()
		return nil, err
	}
	e.refcount = 1
	return e, nil
}

// postinit sweeps an instance-of-this-entity's members in declaration
// order through the type system to derive DimOffset, PropOffsets,
// RelOffset and Size: header first, then one size slot per dimension,
// then one slot per property (inline scalar or pointer handle), then a
// relations slot if the entity declares any relations.
func (e *Entity) postinit() error {
	offset, err := headerFootprint()
	if err != nil {
		return err
	}

	dimSlotSize, _ := typesystem.Footprint(typesystem.Int, 8, 0)
	if len(e.Dimensions) > 0 {
		aligned, alignErr := typesystem.MemberOffset(offset, 0, typesystem.Int, 8)
		if alignErr != nil {
			return alignErr
		}
		e.DimOffset = aligned
		// Dimension-size slots are homogeneous ints packed back to
		// back; no further alignment decision is needed between them.
		offset = aligned + dimSlotSize*len(e.Dimensions)
	}

	e.PropOffsets = make([]int, len(e.Properties))
	prevOffset, prevSize := offset, 0
	maxAlign := 1
	for i, p := range e.Properties {
		align, err := p.effectiveAlignment()
		if err != nil {
			return err
		}
		if align > maxAlign {
			maxAlign = align
		}
		effTag := p.Type
		if p.NDims > 0 {
			effTag = typesystem.StringPointer
		}
		propOffset, err := typesystem.MemberOffset(prevOffset, prevSize, effTag, p.Size)
		if err != nil {
			return err
		}
		footprint, err := p.footprint()
		if err != nil {
			return err
		}
		e.PropOffsets[i] = propOffset
		prevOffset, prevSize = propOffset, footprint
	}

	relOffset := prevOffset + prevSize
	if e.HasRelations {
		handleAlign, _ := typesystem.Alignment(typesystem.StringPointer, 0)
		if handleAlign > maxAlign {
			maxAlign = handleAlign
		}
		relOffset, err = typesystem.MemberOffset(prevOffset, prevSize, typesystem.StringPointer, 0)
		if err != nil {
			return err
		}
		handleSize, _ := typesystem.Footprint(typesystem.StringPointer, 0, 0)
		prevOffset, prevSize = relOffset, handleSize
	}
	e.RelOffset = relOffset

	total := prevOffset + prevSize
	if align := maxAlign; align > 1 && total%align != 0 {
		total += align - total%align
	}
	e.Size = total
	return nil
}

// Incref adds one to e's refcount.
func (e *Entity) Incref() {
	e.refcount++
}

// Decref subtracts one from e's refcount and, on reaching zero, drops
// e's own strong reference to its meta-entity and releases e. It is a
// no-op on the pinned meta-entity singleton.
func (e *Entity) Decref() {
	if e == metaEntitySingleton {
		return
	}
	e.refcount--
	if e.refcount <= 0 {
		if e.Meta != nil {
			// Return the share NewEntity took with Meta.Incref directly:
			// Meta.Decref is a no-op on the pinned singleton.
			e.Meta.refcount--
		}
	}
}

// Refcount reports e's current reference count.
func (e *Entity) Refcount() int {
	return e.refcount
}

// GetDimensionIndex returns the index of the dimension named name, or
// a diagnostic error if absent.
func (e *Entity) GetDimensionIndex(name string) (int, error) {
	for i, d := range e.Dimensions {
		if d.Name == name {
			return i, nil
		}
	}
	return -1, errors.Diagnose(errors.ErrAbsentMember, "entity %q has no dimension named %q", e.URI, name)
}

// GetPropertyIndex returns the index of the property named name, or a
// diagnostic error if absent.
func (e *Entity) GetPropertyIndex(name string) (int, error) {
	for i, p := range e.Properties {
		if p.Name == name {
			return i, nil
		}
	}
	return -1, errors.Diagnose(errors.ErrAbsentMember, "entity %q has no property named %q", e.URI, name)
}
