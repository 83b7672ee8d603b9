package registry

import "dlite/errors"

// Storage is an opaque handle to an open storage: the driver api that
// opened it, the opening uri, an options string, and a writable flag.
type Storage struct {
	API      *DriverAPI
	Handle   StorageHandle
	URI      string
	Options  string
	Writable bool
}

// Open resolves driverName against r and invokes its Open capability,
// stamping the result with the driver api, uri, options and writable
// flag. writable is a DLite-level annotation the core uses to decide
// whether optional writes (e.g. datamodel naming) are attempted; the
// driver itself decides whether the backing medium is actually
// writable.
func (r *Registry) Open(driverName, uri, options string, writable bool) (*Storage, error) {
	api, err := r.Resolve(driverName)
	if err != nil {
		return nil, err
	}
	handle, err := api.Open(uri, options)
	if err != nil {
		return nil, errors.Diagnose(errors.ErrDriverIO, "driver %q failed to open %q: %v", driverName, uri, err)
	}
	return &Storage{API: api, Handle: handle, URI: uri, Options: options, Writable: writable}, nil
}

// Close dispatches to the driver's Close and releases s.
func Close(s *Storage) error {
	if s == nil {
		return nil
	}
	if err := s.API.Close(s.Handle); err != nil {
		return errors.Diagnose(errors.ErrDriverIO, "driver %q failed to close %q: %v", s.API.Name, s.URI, err)
	}
	return nil
}
