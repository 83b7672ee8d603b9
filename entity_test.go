package dlite_test

import (
	"testing"

	"dlite"
	"dlite/typesystem"
)

func chemistryEntity(t *testing.T) *dlite.Entity {
	t.Helper()
	e, err := dlite.NewEntity("dlite/0.1/chemistry", "a chemical element", []dlite.Dimension{
		{Name: "nelements", Description: "number of elements in the sample"},
	}, []dlite.Property{
		{Name: "symbol", Type: typesystem.String, Size: 4},
		{Name: "atomic_number", Type: typesystem.Int, Size: 8},
		{Name: "atomic_weight", Type: typesystem.Float, Size: 8},
		{Name: "isotopes", Type: typesystem.Float, Size: 8, NDims: 1, Dims: []int{0}},
	})
	if err != nil {
		t.Fatalf("NewEntity() error = %v", err)
	}
	return e
}

func TestNewEntityDerivesLayout(t *testing.T) {
	e := chemistryEntity(t)

	if e.Meta == nil {
		t.Fatal("Meta = nil, want the singleton meta-entity")
	}
	if e.Size <= 0 {
		t.Errorf("Size = %d, want > 0", e.Size)
	}
	if len(e.PropOffsets) != len(e.Properties) {
		t.Fatalf("PropOffsets has %d entries, want %d", len(e.PropOffsets), len(e.Properties))
	}
	for i := 1; i < len(e.PropOffsets); i++ {
		if e.PropOffsets[i] <= e.PropOffsets[i-1] {
			t.Errorf("PropOffsets[%d] = %d did not advance past PropOffsets[%d] = %d",
				i, e.PropOffsets[i], i-1, e.PropOffsets[i-1])
		}
	}
}

func TestNewEntityRejectsOutOfRangeDimension(t *testing.T) {
	_, err := dlite.NewEntity("dlite/0.1/broken", "", []dlite.Dimension{{Name: "n"}}, []dlite.Property{
		{Name: "bad", Type: typesystem.Float, Size: 8, NDims: 1, Dims: []int{5}},
	})
	if err == nil {
		t.Fatal("NewEntity() error = nil, want error for out-of-range dimension index")
	}
}

func TestNewEntityRejectsNDimsMismatch(t *testing.T) {
	_, err := dlite.NewEntity("dlite/0.1/broken", "", []dlite.Dimension{{Name: "n"}}, []dlite.Property{
		{Name: "bad", Type: typesystem.Float, Size: 8, NDims: 2, Dims: []int{0}},
	})
	if err == nil {
		t.Fatal("NewEntity() error = nil, want error for ndims/dims length mismatch")
	}
}

func TestEntityRefcount(t *testing.T) {
	e := chemistryEntity(t)
	meta := e.Meta
	before := meta.Refcount()

	e.Incref()
	if got := e.Refcount(); got != 2 {
		t.Errorf("Refcount() after Incref() = %d, want 2", got)
	}
	e.Decref()
	if got := e.Refcount(); got != 1 {
		t.Errorf("Refcount() after Decref() = %d, want 1", got)
	}
	e.Decref()
	// e's own refcount reaching zero must drop its held reference to
	// the meta-entity, restoring meta's refcount to its pre-create value.
	if got := meta.Refcount(); got != before-1 {
		t.Errorf("meta Refcount() after owner's last Decref() = %d, want %d", got, before-1)
	}
}

func TestMetaEntityIsPinnedSingleton(t *testing.T) {
	a := dlite.NewMetaEntity()
	b := dlite.NewMetaEntity()
	if a != b {
		t.Fatal("NewMetaEntity() returned two distinct singletons")
	}
	before := a.Refcount()
	a.Decref()
	a.Decref()
	if got := a.Refcount(); got != before {
		t.Errorf("Refcount() after Decref() on pinned meta-entity = %d, want unchanged %d", got, before)
	}
}

func TestGetDimensionAndPropertyIndex(t *testing.T) {
	e := chemistryEntity(t)

	if idx, err := e.GetDimensionIndex("nelements"); err != nil || idx != 0 {
		t.Errorf("GetDimensionIndex(nelements) = (%d, %v), want (0, nil)", idx, err)
	}
	if _, err := e.GetDimensionIndex("missing"); err == nil {
		t.Error("GetDimensionIndex(missing) error = nil, want error")
	}

	if idx, err := e.GetPropertyIndex("atomic_number"); err != nil || idx != 1 {
		t.Errorf("GetPropertyIndex(atomic_number) = (%d, %v), want (1, nil)", idx, err)
	}
	if _, err := e.GetPropertyIndex("missing"); err == nil {
		t.Error("GetPropertyIndex(missing) error = nil, want error")
	}
}
