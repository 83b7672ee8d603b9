package dlite

import (
	"dlite/errors"
	"dlite/identity"
	"dlite/triplestore"
)

// Predicates a Collection gives built-in meaning to: every member
// contributes exactly these three triples, keyed off its label. Callers
// are free to add any other predicate via AddRelation.
const (
	predicateIsA     = "_is-a"
	predicateHasUUID = "_has-uuid"
	predicateHasMeta = "_has-meta"

	// objectInstance is the fixed object of every _is-a triple a member
	// contributes; it marks the subject as a label bound to an instance,
	// as opposed to any other use a caller's own relations might put a
	// label to.
	objectInstance = "Instance"
)

// predicateHasDimmap is an optional relation a caller may record via
// AddRelation to associate a label with a dimension mapping; Remove
// follows it before clearing the label's other bookkeeping.
const predicateHasDimmap = "_has-dimmap"

// CollectionURI is the metadata uri every collection references as its
// own schema.
const CollectionURI = "dlite/0.1/collection"

// Collection is a triple-store-backed bag of labelled instance
// references. It delegates all fact storage to a triplestore.Store,
// where each member contributes the three built-in predicates; only the
// collection's own identity and dimension sizes are held outside the
// store. A collection holds labels and uuids, not
// strong instance references: freeing a collection does not free the
// instances it referenced.
type Collection struct {
	UUID string
	URI  string // set only when the id that produced UUID was name-derived (v5)

	store triplestore.Store
	dims  map[string]int
}

// NewCollection returns an empty collection backed by an in-memory
// triple store, with identity derived from id the same way instance
// identity is.
func NewCollection(id string) (*Collection, error) {
	canonical, version, err := identity.GetUUID(id)
	if err != nil {
		return nil, err
	}
	c := &Collection{
		UUID:  canonical,
		store: triplestore.New(),
		dims:  make(map[string]int),
	}
	if version == identity.VersionV5 {
		c.URI = id
	}
	return c, nil
}

// MetadataURI returns the uri of the schema describing collections
// themselves.
func (c *Collection) MetadataURI() string {
	return CollectionURI
}

// SetDimension binds a named collection dimension to size.
func (c *Collection) SetDimension(name string, size int) error {
	if size < 0 {
		return errors.Diagnose(errors.ErrSchema, "collection dimension %q size must be non-negative, got %d", name, size)
	}
	c.dims[name] = size
	return nil
}

// GetDimensionSize returns the size bound to the named collection
// dimension.
func (c *Collection) GetDimensionSize(name string) (int, error) {
	size, ok := c.dims[name]
	if !ok {
		return 0, errors.Diagnose(errors.ErrAbsentMember, "collection has no dimension named %q", name)
	}
	return size, nil
}

// Add makes label a member of the collection bound to inst: it records
// (label, _is-a, Instance), (label, _has-uuid, inst.UUID) and
// (label, _has-meta, inst.Entity.URI). It fails if inst has no meta,
// since a member with no entity could never satisfy _has-meta.
func (c *Collection) Add(label string, inst *Instance) error {
	if inst == nil || inst.Entity == nil {
		return errors.Diagnose(errors.ErrSchema, "collection: cannot add label %q: instance has no meta", label)
	}
	if _, err := c.store.Add(label, predicateIsA, objectInstance); err != nil {
		return err
	}
	if _, err := c.store.Add(label, predicateHasUUID, inst.UUID); err != nil {
		return err
	}
	if _, err := c.store.Add(label, predicateHasMeta, inst.Entity.URI); err != nil {
		return err
	}
	return nil
}

// Remove drops label's membership and its _has-uuid/_has-meta triples.
// Removal of the _is-a marker gates everything else: if no _is-a triple
// existed for label, nothing else is touched. Any _has-dimmap triples
// recorded for label are resolved by following label _has-dimmap * and
// deleting each referenced triple by id before the uuid/meta triples
// are cleared.
func (c *Collection) Remove(label string) error {
	removed, err := c.store.Remove(label, predicateIsA, objectInstance)
	if err != nil {
		return err
	}
	if removed == 0 {
		return nil
	}

	for _, dimmap := range c.Find(label, predicateHasDimmap, triplestore.Wildcard) {
		if err := c.store.RemoveByID(dimmap.ID); err != nil {
			return err
		}
	}

	if _, err := c.store.Remove(label, predicateHasDimmap, triplestore.Wildcard); err != nil {
		return err
	}
	if _, err := c.store.Remove(label, predicateHasUUID, triplestore.Wildcard); err != nil {
		return err
	}
	if _, err := c.store.Remove(label, predicateHasMeta, triplestore.Wildcard); err != nil {
		return err
	}
	return nil
}

// Contains reports whether label currently names a member.
func (c *Collection) Contains(label string) bool {
	_, ok := c.store.FindFirst(label, predicateIsA, objectInstance)
	return ok
}

// InstanceUUID returns the uuid bound to label, if any.
func (c *Collection) InstanceUUID(label string) (string, bool) {
	t, ok := c.store.FindFirst(label, predicateHasUUID, triplestore.Wildcard)
	if !ok {
		return "", false
	}
	return t.Object, true
}

// MetaURI returns the entity uri bound to label, if any.
func (c *Collection) MetaURI(label string) (string, bool) {
	t, ok := c.store.FindFirst(label, predicateHasMeta, triplestore.Wildcard)
	if !ok {
		return "", false
	}
	return t.Object, true
}

// Labels returns every current member label, in no particular order.
func (c *Collection) Labels() []string {
	var out []string
	for _, t := range c.Find(triplestore.Wildcard, predicateIsA, objectInstance) {
		out = append(out, t.Subject)
	}
	return out
}

// AddRelation records an arbitrary (subject, predicate, object) fact,
// a direct passthrough to the backing store.
func (c *Collection) AddRelation(subject, predicate, object string) error {
	_, err := c.store.Add(subject, predicate, object)
	return err
}

// RemoveRelations deletes every fact matching the pattern
// (triplestore.Wildcard matches any value in a position) and reports how
// many were removed; a direct passthrough to the backing store.
func (c *Collection) RemoveRelations(subject, predicate, object string) (int, error) {
	return c.store.Remove(subject, predicate, object)
}

// Find returns every fact currently matching the pattern, driving the
// store's single-match iterator to exhaustion against a fresh state.
// The store's own Find requires the collection to stay unmutated during
// iteration; Find here owns its iteration start to finish, so callers
// get a stable snapshot.
func (c *Collection) Find(subject, predicate, object string) []triplestore.Triple {
	state := c.store.InitState()
	var out []triplestore.Triple
	for {
		t, ok := c.store.Find(state, subject, predicate, object)
		if !ok {
			break
		}
		out = append(out, t)
	}
	return out
}

// Free releases the collection's backing store. Instances referenced by
// members are untouched.
func (c *Collection) Free() {
	c.store.Free()
}
