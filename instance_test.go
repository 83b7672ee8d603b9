package dlite_test

import (
	"testing"

	"dlite"
	"dlite/typesystem"
)

func alloyEntity(t *testing.T) *dlite.Entity {
	t.Helper()
	e, err := dlite.NewEntity("dlite/0.1/alloy", "a metal alloy sample", []dlite.Dimension{
		{Name: "ncomponents", Description: "number of component metals"},
	}, []dlite.Property{
		{Name: "name", Type: typesystem.StringPointer},
		{Name: "density", Type: typesystem.Float, Size: 8},
		{Name: "components", Type: typesystem.StringPointer, NDims: 1, Dims: []int{0}},
		{Name: "fractions", Type: typesystem.Float, Size: 8, NDims: 1, Dims: []int{0}},
	})
	if err != nil {
		t.Fatalf("NewEntity() error = %v", err)
	}
	return e
}

func TestCreateInstanceRefcount(t *testing.T) {
	e := alloyEntity(t)
	before := e.Refcount()

	inst, err := dlite.CreateInstance(e, []int{2}, "")
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	if got := e.Refcount(); got != before+1 {
		t.Errorf("Refcount() after CreateInstance() = %d, want %d", got, before+1)
	}

	dlite.FreeInstance(inst)
	if got := e.Refcount(); got != before {
		t.Errorf("Refcount() after FreeInstance() = %d, want %d", got, before)
	}
}

func TestCreateInstanceRejectsDimensionCountMismatch(t *testing.T) {
	e := alloyEntity(t)
	if _, err := dlite.CreateInstance(e, []int{1, 2}, ""); err == nil {
		t.Fatal("CreateInstance() error = nil, want error for dimension count mismatch")
	}
}

func TestScalarPropertyGetSet(t *testing.T) {
	e := alloyEntity(t)
	inst, err := dlite.CreateInstance(e, []int{2}, "")
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	defer dlite.FreeInstance(inst)

	if err := inst.SetProperty("density", 7.85); err != nil {
		t.Fatalf("SetProperty(density) error = %v", err)
	}
	got, err := inst.GetProperty("density")
	if err != nil {
		t.Fatalf("GetProperty(density) error = %v", err)
	}
	if got.(float64) != 7.85 {
		t.Errorf("GetProperty(density) = %v, want 7.85", got)
	}

	if err := inst.SetProperty("name", "steel"); err != nil {
		t.Fatalf("SetProperty(name) error = %v", err)
	}
	got, err = inst.GetProperty("name")
	if err != nil {
		t.Fatalf("GetProperty(name) error = %v", err)
	}
	if got.(string) != "steel" {
		t.Errorf("GetProperty(name) = %v, want steel", got)
	}
}

func TestArrayPropertyGetSet(t *testing.T) {
	e := alloyEntity(t)
	inst, err := dlite.CreateInstance(e, []int{2}, "")
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	defer dlite.FreeInstance(inst)

	err = inst.SetProperty("fractions", &dlite.ArrayValue{
		Shape:  []int{2},
		Values: []interface{}{0.7, 0.3},
	})
	if err != nil {
		t.Fatalf("SetProperty(fractions) error = %v", err)
	}

	value, err := inst.GetProperty("fractions")
	if err != nil {
		t.Fatalf("GetProperty(fractions) error = %v", err)
	}
	arr, ok := value.(*dlite.ArrayValue)
	if !ok {
		t.Fatalf("GetProperty(fractions) = %T, want *dlite.ArrayValue", value)
	}
	if len(arr.Values) != 2 || arr.Values[0].(float64) != 0.7 || arr.Values[1].(float64) != 0.3 {
		t.Errorf("GetProperty(fractions).Values = %v, want [0.7 0.3]", arr.Values)
	}
}

func TestArrayPropertyRejectsShapeMismatch(t *testing.T) {
	e := alloyEntity(t)
	inst, err := dlite.CreateInstance(e, []int{2}, "")
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	defer dlite.FreeInstance(inst)

	err = inst.SetProperty("fractions", &dlite.ArrayValue{
		Shape:  []int{3},
		Values: []interface{}{0.1, 0.2, 0.7},
	})
	if err == nil {
		t.Fatal("SetProperty() with mismatched shape error = nil, want error")
	}
}

func TestStringPointerArrayOwnsCopies(t *testing.T) {
	e := alloyEntity(t)
	inst, err := dlite.CreateInstance(e, []int{2}, "")
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	defer dlite.FreeInstance(inst)

	names := []interface{}{"iron", "carbon"}
	if err := inst.SetProperty("components", &dlite.ArrayValue{Shape: []int{2}, Values: names}); err != nil {
		t.Fatalf("SetProperty(components) error = %v", err)
	}
	names[0] = "mutated"

	value, err := inst.GetProperty("components")
	if err != nil {
		t.Fatalf("GetProperty(components) error = %v", err)
	}
	arr := value.(*dlite.ArrayValue)
	if arr.Values[0].(string) != "iron" {
		t.Errorf("GetProperty(components).Values[0] = %v, want iron (mutating caller's slice must not alias the instance)", arr.Values[0])
	}
}

func TestGetDimensionSize(t *testing.T) {
	e := alloyEntity(t)
	inst, err := dlite.CreateInstance(e, []int{3}, "")
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	defer dlite.FreeInstance(inst)

	size, err := inst.GetDimensionSize("ncomponents")
	if err != nil {
		t.Fatalf("GetDimensionSize() error = %v", err)
	}
	if size != 3 {
		t.Errorf("GetDimensionSize() = %d, want 3", size)
	}
}

func TestNarrowIntSignExtension(t *testing.T) {
	e, err := dlite.NewEntity("dlite/0.1/narrow", "", nil, []dlite.Property{
		{Name: "offset", Type: typesystem.Int, Size: 4},
	})
	if err != nil {
		t.Fatalf("NewEntity() error = %v", err)
	}
	inst, err := dlite.CreateInstance(e, nil, "")
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	defer dlite.FreeInstance(inst)

	if err := inst.SetProperty("offset", int64(-5)); err != nil {
		t.Fatalf("SetProperty() error = %v", err)
	}
	got, err := inst.GetProperty("offset")
	if err != nil {
		t.Fatalf("GetProperty() error = %v", err)
	}
	if got.(int64) != -5 {
		t.Errorf("GetProperty() = %d, want -5 (negative values must survive a 4-byte slot)", got)
	}
}

func TestSetPropertyCoercesWidenedValues(t *testing.T) {
	e, err := dlite.NewEntity("dlite/0.1/widened", "", nil, []dlite.Property{
		{Name: "count", Type: typesystem.Int, Size: 8},
		{Name: "flags", Type: typesystem.Uint, Size: 8},
	})
	if err != nil {
		t.Fatalf("NewEntity() error = %v", err)
	}
	inst, err := dlite.CreateInstance(e, nil, "")
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	defer dlite.FreeInstance(inst)

	// A JSON-backed driver hands every number back as float64; integral
	// values must land in integer properties unchanged.
	if err := inst.SetProperty("count", float64(42)); err != nil {
		t.Fatalf("SetProperty(count, float64) error = %v", err)
	}
	got, _ := inst.GetProperty("count")
	if got.(int64) != 42 {
		t.Errorf("count = %v, want int64(42)", got)
	}

	if err := inst.SetProperty("flags", float64(7)); err != nil {
		t.Fatalf("SetProperty(flags, float64) error = %v", err)
	}
	got, _ = inst.GetProperty("flags")
	if got.(uint64) != 7 {
		t.Errorf("flags = %v, want uint64(7)", got)
	}

	// A fractional value has no faithful integer representation and must
	// be rejected, not truncated.
	if err := inst.SetProperty("count", 1.5); err == nil {
		t.Error("SetProperty(count, 1.5) error = nil, want error")
	}
}

func TestPropertyAccessByIndex(t *testing.T) {
	e := alloyEntity(t)
	inst, err := dlite.CreateInstance(e, []int{2}, "")
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	defer dlite.FreeInstance(inst)

	if err := inst.SetPropertyByIndex(1, 2.7); err != nil {
		t.Fatalf("SetPropertyByIndex(1) error = %v", err)
	}
	got, err := inst.GetPropertyByIndex(1)
	if err != nil {
		t.Fatalf("GetPropertyByIndex(1) error = %v", err)
	}
	if got.(float64) != 2.7 {
		t.Errorf("GetPropertyByIndex(1) = %v, want 2.7", got)
	}

	if _, err := inst.GetPropertyByIndex(99); err == nil {
		t.Error("GetPropertyByIndex(99) error = nil, want error")
	}
	if size, err := inst.GetDimensionSizeByIndex(0); err != nil || size != 2 {
		t.Errorf("GetDimensionSizeByIndex(0) = (%d, %v), want (2, nil)", size, err)
	}
	if _, err := inst.GetDimensionSizeByIndex(5); err == nil {
		t.Error("GetDimensionSizeByIndex(5) error = nil, want error")
	}
}
