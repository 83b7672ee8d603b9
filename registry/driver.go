// Package registry implements the storage-driver plugin contract and
// the process-wide plugin catalogue: a DriverAPI is a named record of
// function pointers partitioned into a required core and an optional
// extension; a Registry resolves driver names against registered APIs,
// then against loadable modules on a search path.
package registry

// StorageHandle is an opaque, driver-defined handle to an open storage.
type StorageHandle interface{}

// DataModelHandle is an opaque, driver-defined handle bound to a
// (storage, uuid) pair.
type DataModelHandle interface{}

// EntitySchema is the persisted-entity wire format a driver's
// GetEntity/SetEntity capability reads and writes. It is independent of
// dlite.Entity's in-memory layout (offsets, refcounts): a driver never
// sees those.
type EntitySchema struct {
	URI         string            `json:"uri"`
	Description string            `json:"description,omitempty"`
	Dimensions  []DimensionSchema `json:"dimensions"`
	Properties  []PropertySchema  `json:"properties"`
}

// DimensionSchema is one declared dimension in a persisted entity.
type DimensionSchema struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PropertySchema is one declared property in a persisted entity. Dims
// names dimensions by name (not index); the core resolves names to
// indices against the owning entity when it builds a dlite.Entity from
// this schema.
type PropertySchema struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Size        int      `json:"size"`
	Dims        []string `json:"dims,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Description string   `json:"description,omitempty"`
}

// DriverAPI is the storage driver boundary: a record of function
// pointers a driver provides, plus its own name so diagnostics can name
// the driver that failed. Required fields must be non-nil for any
// registered driver; optional fields may be nil, in which case the
// façade that invokes them surfaces a MissingCapability error.
type DriverAPI struct {
	Name string

	// Required core.
	Open             func(uri, options string) (StorageHandle, error)
	Close            func(h StorageHandle) error
	DataModel        func(h StorageHandle, uuid string) (DataModelHandle, error)
	DataModelFree    func(h StorageHandle, dm DataModelHandle) error
	GetMetadata      func(h StorageHandle, dm DataModelHandle) (string, error)
	GetDimensionSize func(h StorageHandle, dm DataModelHandle, name string) (int, error)
	GetProperty      func(h StorageHandle, dm DataModelHandle, name string, shape []int) (interface{}, error)

	// Optional extension. Any of these may be nil.
	GetUUIDs         func(h StorageHandle) ([]string, error)
	SetMetadata      func(h StorageHandle, dm DataModelHandle, metadataURI string) error
	SetDimensionSize func(h StorageHandle, dm DataModelHandle, name string, size int) error
	SetProperty      func(h StorageHandle, dm DataModelHandle, name string, value interface{}) error
	HasDimension     func(h StorageHandle, dm DataModelHandle, name string) bool
	HasProperty      func(h StorageHandle, dm DataModelHandle, name string) bool
	GetDataName      func(h StorageHandle, dm DataModelHandle) (string, error)
	SetDataName      func(h StorageHandle, dm DataModelHandle, name string) error
	GetEntity        func(h StorageHandle, uri string) (*EntitySchema, error)
	SetEntity        func(h StorageHandle, schema *EntitySchema) error
}

// missingCore reports which required capabilities, if any, are nil.
func (d *DriverAPI) missingCore() []string {
	var missing []string
	if d.Open == nil {
		missing = append(missing, "Open")
	}
	if d.Close == nil {
		missing = append(missing, "Close")
	}
	if d.DataModel == nil {
		missing = append(missing, "DataModel")
	}
	if d.DataModelFree == nil {
		missing = append(missing, "DataModelFree")
	}
	if d.GetMetadata == nil {
		missing = append(missing, "GetMetadata")
	}
	if d.GetDimensionSize == nil {
		missing = append(missing, "GetDimensionSize")
	}
	if d.GetProperty == nil {
		missing = append(missing, "GetProperty")
	}
	return missing
}
