// Package config provides centralized configuration for DLite's plugin
// registry: environment variables with documented defaults, no CLI flag
// or config-file layer, since the core library has no CLI of its own.
package config

import (
	"os"
	"strings"
)

// Config holds the settings the storage-driver registry needs to
// resolve a named driver.
type Config struct {
	// PluginSearchPath is the ordered list of directories scanned for
	// loadable driver modules when a name isn't already registered.
	// Environment: DLITE_STORAGE_PLUGIN_DIRS
	PluginSearchPath []string

	// BuildRootOverride, if non-empty, is prepended to PluginSearchPath
	// so a development checkout finds freshly built plugins before any
	// installed ones.
	// Environment: DLITE_PLUGIN_BUILD_ROOT
	BuildRootOverride string

	// DefaultDriver is a driver name a caller may fall back to when it
	// has none of its own. Nothing in this module reads it:
	// Registry.Open always takes an explicit driver name.
	// Environment: DLITE_DEFAULT_DRIVER
	// Default: "json"
	DefaultDriver string
}

// FromEnvironment builds a Config from the process environment.
func FromEnvironment() *Config {
	cfg := &Config{
		DefaultDriver: "json",
	}

	if dirs := os.Getenv("DLITE_STORAGE_PLUGIN_DIRS"); dirs != "" {
		cfg.PluginSearchPath = splitPathList(dirs)
	}

	cfg.BuildRootOverride = os.Getenv("DLITE_PLUGIN_BUILD_ROOT")
	if cfg.BuildRootOverride != "" {
		cfg.PluginSearchPath = append([]string{cfg.BuildRootOverride}, cfg.PluginSearchPath...)
	}

	if driver := os.Getenv("DLITE_DEFAULT_DRIVER"); driver != "" {
		cfg.DefaultDriver = driver
	}

	return cfg
}

// splitPathList splits a plugin search path string on the
// platform-appropriate separator (':' on POSIX, ';' on Windows) and
// drops empty segments.
func splitPathList(s string) []string {
	parts := strings.Split(s, string(os.PathListSeparator))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
