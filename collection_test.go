package dlite_test

import (
	"testing"

	"dlite"
	"dlite/triplestore"
	"dlite/typesystem"
)

func simpleEntity(t *testing.T) *dlite.Entity {
	t.Helper()
	e, err := dlite.NewEntity("dlite/0.1/sample", "a minimal entity for collection tests",
		nil, []dlite.Property{{Name: "value", Type: typesystem.Int, Size: 8}})
	if err != nil {
		t.Fatalf("NewEntity() error = %v", err)
	}
	return e
}

func TestCollectionMembership(t *testing.T) {
	e := simpleEntity(t)
	inst, err := dlite.CreateInstance(e, nil, "inst-1")
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	defer dlite.FreeInstance(inst)

	c, err := dlite.NewCollection("coll-1")
	if err != nil {
		t.Fatalf("NewCollection() error = %v", err)
	}
	defer c.Free()

	if err := c.Add("a", inst); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if !c.Contains("a") {
		t.Error("Contains(a) = false, want true")
	}
	if c.Contains("b") {
		t.Error("Contains(b) = true, want false")
	}
	if uuid, ok := c.InstanceUUID("a"); !ok || uuid != inst.UUID {
		t.Errorf("InstanceUUID(a) = (%q, %v), want (%q, true)", uuid, ok, inst.UUID)
	}
	if uri, ok := c.MetaURI("a"); !ok || uri != e.URI {
		t.Errorf("MetaURI(a) = (%q, %v), want (%q, true)", uri, ok, e.URI)
	}

	if err := c.Remove("a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if c.Contains("a") {
		t.Error("Contains(a) after Remove() = true, want false")
	}
	if _, ok := c.InstanceUUID("a"); ok {
		t.Error("InstanceUUID(a) after Remove() = ok, want not found")
	}
}

func TestCollectionAddRejectsInstanceWithNoMeta(t *testing.T) {
	c, err := dlite.NewCollection("coll-1")
	if err != nil {
		t.Fatalf("NewCollection() error = %v", err)
	}
	defer c.Free()

	if err := c.Add("a", &dlite.Instance{}); err == nil {
		t.Fatal("Add() error = nil, want error for instance with no meta")
	}
}

func TestCollectionLabels(t *testing.T) {
	e := simpleEntity(t)
	inst1, _ := dlite.CreateInstance(e, nil, "inst-1")
	inst2, _ := dlite.CreateInstance(e, nil, "inst-2")
	defer dlite.FreeInstance(inst1)
	defer dlite.FreeInstance(inst2)

	c, err := dlite.NewCollection("coll-1")
	if err != nil {
		t.Fatalf("NewCollection() error = %v", err)
	}
	defer c.Free()
	c.Add("a", inst1)
	c.Add("b", inst2)

	labels := c.Labels()
	if len(labels) != 2 {
		t.Fatalf("Labels() = %v, want 2 entries", labels)
	}
}

func TestCollectionRelations(t *testing.T) {
	e := simpleEntity(t)
	inst1, _ := dlite.CreateInstance(e, nil, "inst-1")
	inst2, _ := dlite.CreateInstance(e, nil, "inst-2")
	defer dlite.FreeInstance(inst1)
	defer dlite.FreeInstance(inst2)

	c, err := dlite.NewCollection("coll-1")
	if err != nil {
		t.Fatalf("NewCollection() error = %v", err)
	}
	defer c.Free()
	c.Add("a", inst1)
	c.Add("b", inst2)

	if err := c.AddRelation("a", "alloyed-with", "b"); err != nil {
		t.Fatalf("AddRelation() error = %v", err)
	}

	found := c.Find("a", "alloyed-with", triplestore.Wildcard)
	if len(found) != 1 || found[0].Object != "b" {
		t.Errorf("Find() = %v, want one triple to b", found)
	}

	count, err := c.RemoveRelations("a", "alloyed-with", triplestore.Wildcard)
	if err != nil {
		t.Fatalf("RemoveRelations() error = %v", err)
	}
	if count != 1 {
		t.Errorf("RemoveRelations() count = %d, want 1", count)
	}
	if found := c.Find("a", "alloyed-with", triplestore.Wildcard); len(found) != 0 {
		t.Errorf("Find() after RemoveRelations() = %v, want none", found)
	}
}

func TestCollectionRemoveFollowsDimmap(t *testing.T) {
	e := simpleEntity(t)
	inst, _ := dlite.CreateInstance(e, nil, "inst-1")
	defer dlite.FreeInstance(inst)

	c, err := dlite.NewCollection("coll-1")
	if err != nil {
		t.Fatalf("NewCollection() error = %v", err)
	}
	defer c.Free()
	c.Add("a", inst)
	if err := c.AddRelation("a", "_has-dimmap", "dimmap-1"); err != nil {
		t.Fatalf("AddRelation() error = %v", err)
	}

	if err := c.Remove("a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if found := c.Find("a", "_has-dimmap", triplestore.Wildcard); len(found) != 0 {
		t.Errorf("Find(a, _has-dimmap, *) after Remove() = %v, want none", found)
	}
}

func TestCollectionIdentityAndDimensions(t *testing.T) {
	c, err := dlite.NewCollection("dlite/0.1/my-collection")
	if err != nil {
		t.Fatalf("NewCollection() error = %v", err)
	}
	defer c.Free()

	if c.UUID == "" {
		t.Error("UUID = empty, want a derived uuid")
	}
	if c.URI != "dlite/0.1/my-collection" {
		t.Errorf("URI = %q, want the name it was created from", c.URI)
	}
	if c.MetadataURI() != dlite.CollectionURI {
		t.Errorf("MetadataURI() = %q, want %q", c.MetadataURI(), dlite.CollectionURI)
	}

	if err := c.SetDimension("nsteps", 10); err != nil {
		t.Fatalf("SetDimension() error = %v", err)
	}
	if size, err := c.GetDimensionSize("nsteps"); err != nil || size != 10 {
		t.Errorf("GetDimensionSize(nsteps) = (%d, %v), want (10, nil)", size, err)
	}
	if _, err := c.GetDimensionSize("missing"); err == nil {
		t.Error("GetDimensionSize(missing) error = nil, want error")
	}
	if err := c.SetDimension("nsteps", -1); err == nil {
		t.Error("SetDimension(-1) error = nil, want error")
	}
}
