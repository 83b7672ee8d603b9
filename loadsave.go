package dlite

import (
	"dlite/errors"
	"dlite/identity"
	"dlite/registry"
	"dlite/typesystem"
)

// checkLoadable rejects loading by an id whose uuid would be freshly
// generated at random: an empty id can never name something already
// persisted, so there is nothing meaningful to load. Ids that are
// already canonical uuids or that derive a deterministic v5 uuid pass.
func checkLoadable(op, id string) error {
	_, version, err := identity.GetUUID(id)
	if err != nil {
		return err
	}
	if version == identity.VersionV4 {
		return errors.Diagnose(errors.ErrIdentity, "%s: id is empty; nothing could have been persisted under a freshly generated uuid", op)
	}
	return nil
}

// LoadEntity resolves the persisted entity named uri from storage and
// builds a dlite.Entity from it, deriving its layout via NewEntity.
// The driver must implement the optional GetEntity capability.
func LoadEntity(storage *registry.Storage, uri string) (*Entity, error) {
	if err := checkLoadable("LoadEntity", uri); err != nil {
		return nil, err
	}
	if storage.API.GetEntity == nil {
		return nil, errors.MissingCapability(storage.API.Name, "GetEntity")
	}
	schema, err := storage.API.GetEntity(storage.Handle, uri)
	if err != nil {
		return nil, errors.Diagnose(errors.ErrDriverIO, "driver %q: get entity %q: %v", storage.API.Name, uri, err)
	}

	dims := make([]Dimension, len(schema.Dimensions))
	dimIndex := make(map[string]int, len(dims))
	for i, d := range schema.Dimensions {
		dims[i] = Dimension{Name: d.Name, Description: d.Description}
		dimIndex[d.Name] = i
	}

	props := make([]Property, len(schema.Properties))
	for i, p := range schema.Properties {
		tag, err := typesystem.ParseTag(p.Type)
		if err != nil {
			return nil, err
		}
		propDims := make([]int, len(p.Dims))
		for j, name := range p.Dims {
			idx, ok := dimIndex[name]
			if !ok {
				return nil, errors.Diagnose(errors.ErrSchema,
					"entity %q: property %q references unknown dimension %q", uri, p.Name, name)
			}
			propDims[j] = idx
		}
		props[i] = Property{
			Name:        p.Name,
			Type:        tag,
			Size:        p.Size,
			NDims:       len(propDims),
			Dims:        propDims,
			Description: p.Description,
			Unit:        p.Unit,
		}
	}

	return NewEntity(schema.URI, schema.Description, dims, props)
}

// SaveEntity persists e's declared shape (not its derived layout, which
// every loader recomputes) through storage's optional SetEntity
// capability.
func SaveEntity(storage *registry.Storage, e *Entity) error {
	if storage.API.SetEntity == nil {
		return errors.MissingCapability(storage.API.Name, "SetEntity")
	}

	schema := &registry.EntitySchema{
		URI:         e.URI,
		Description: e.Description,
		Dimensions:  make([]registry.DimensionSchema, len(e.Dimensions)),
		Properties:  make([]registry.PropertySchema, len(e.Properties)),
	}
	for i, d := range e.Dimensions {
		schema.Dimensions[i] = registry.DimensionSchema{Name: d.Name, Description: d.Description}
	}
	for i, p := range e.Properties {
		typeName, err := typesystem.Name(p.Type)
		if err != nil {
			return err
		}
		dimNames := make([]string, len(p.Dims))
		for j, d := range p.Dims {
			dimNames[j] = e.Dimensions[d].Name
		}
		schema.Properties[i] = registry.PropertySchema{
			Name:        p.Name,
			Type:        typeName,
			Size:        p.Size,
			Dims:        dimNames,
			Unit:        p.Unit,
			Description: p.Description,
		}
	}

	if err := storage.API.SetEntity(storage.Handle, schema); err != nil {
		return errors.Diagnose(errors.ErrDriverIO, "driver %q: set entity %q: %v", storage.API.Name, e.URI, err)
	}
	return nil
}

// LoadInstance reconstructs an instance of entity from storage's
// persisted record for id. Two guards apply: id must actually be able
// to name something (checkLoadable), and the record's own metadata uri
// must match entity.URI rather than silently reinterpreting the stored
// values under the wrong schema.
func LoadInstance(storage *registry.Storage, entity *Entity, id string) (*Instance, error) {
	if err := checkLoadable("LoadInstance", id); err != nil {
		return nil, err
	}
	dm, err := OpenDataModel(storage, id)
	if err != nil {
		return nil, err
	}
	defer dm.Close()

	metaURI, err := dm.GetMetadata()
	if err != nil {
		return nil, err
	}
	if metaURI != entity.URI {
		return nil, errors.Diagnose(errors.ErrSchema,
			"instance %q: persisted metadata uri %q does not match entity %q", id, metaURI, entity.URI)
	}

	dims := make([]int, len(entity.Dimensions))
	for i, d := range entity.Dimensions {
		size, err := dm.GetDimensionSize(d.Name)
		if err != nil {
			return nil, err
		}
		dims[i] = size
	}

	inst, err := CreateInstance(entity, dims, id)
	if err != nil {
		return nil, err
	}

	for _, p := range entity.Properties {
		shape := shapeOf(dims, p)
		value, err := dm.GetProperty(p, shape)
		if err != nil {
			FreeInstance(inst)
			return nil, err
		}
		if err := inst.SetProperty(p.Name, value); err != nil {
			FreeInstance(inst)
			return nil, err
		}
	}
	return inst, nil
}

// ListUUIDs returns every instance uuid storage currently holds, via
// the driver's optional GetUUIDs capability.
func ListUUIDs(storage *registry.Storage) ([]string, error) {
	if storage.API.GetUUIDs == nil {
		return nil, errors.MissingCapability(storage.API.Name, "GetUUIDs")
	}
	uuids, err := storage.API.GetUUIDs(storage.Handle)
	if err != nil {
		return nil, errors.Diagnose(errors.ErrDriverIO, "driver %q: get uuids: %v", storage.API.Name, err)
	}
	return uuids, nil
}

// SaveInstance persists inst's current metadata binding, dimension
// sizes, and property values through storage. The driver must
// implement SetMetadata, SetDimensionSize and SetProperty.
func SaveInstance(storage *registry.Storage, inst *Instance) error {
	dm, err := OpenDataModel(storage, inst.UUID)
	if err != nil {
		return err
	}
	defer dm.Close()

	if err := dm.SetMetadata(inst.Entity.URI); err != nil {
		return err
	}
	for i, d := range inst.Entity.Dimensions {
		if err := dm.SetDimensionSize(d.Name, inst.Dims[i]); err != nil {
			return err
		}
	}
	for _, p := range inst.Entity.Properties {
		value, err := inst.GetProperty(p.Name)
		if err != nil {
			return err
		}
		if err := dm.SetProperty(p, value); err != nil {
			return err
		}
	}
	return nil
}
