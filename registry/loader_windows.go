//go:build windows

package registry

import "dlite/errors"

// loadModule has no implementation on Windows: the stdlib plugin
// package only supports linux/darwin/freebsd, and a DLL-based loader
// would need its own ABI (cgo-exported symbols with a stable calling
// convention) rather than Go's plugin symbol table. Drivers registered
// in-process via Registry.Register still work on Windows; only dynamic
// module loading is unavailable.
func loadModule(path string) (*DriverAPI, error) {
	return nil, errors.Diagnose(errors.ErrPluginResolution,
		"dynamic plugin loading is not supported on this platform: %s", path)
}
