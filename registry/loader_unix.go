//go:build !windows

package registry

import (
	"plugin"

	"dlite/errors"
)

// pluginSymbol is the well-known exported symbol every driver module
// must provide: a niladic function returning its api record.
const pluginSymbol = "DLitePluginAPI"

// loadModule opens the shared object at path and resolves its exported
// DriverAPI via the well-known symbol.
func loadModule(path string) (*DriverAPI, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, errors.Diagnose(errors.ErrPluginResolution, "failed to open module %s: %v", path, err)
	}
	sym, err := p.Lookup(pluginSymbol)
	if err != nil {
		return nil, errors.Diagnose(errors.ErrPluginResolution,
			"module %s does not export %s", path, pluginSymbol)
	}
	factory, ok := sym.(func() *DriverAPI)
	if !ok {
		return nil, errors.Diagnose(errors.ErrPluginResolution,
			"module %s's %s symbol has the wrong type", path, pluginSymbol)
	}
	api := factory()
	if api == nil {
		return nil, errors.Diagnose(errors.ErrPluginResolution, "module %s returned a nil driver", path)
	}
	return api, nil
}
