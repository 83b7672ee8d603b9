// Package errors is DLite's error-reporting utility: sentinel error
// kinds plus a Diagnose helper that logs a
// message before wrapping one of them, so every fallible core operation
// can both return a typed error and leave a trail in the log.
package errors

import (
	"errors"
	"fmt"

	"dlite/logger"
)

// Sentinel error kinds. Use errors.Is against these to classify a
// failure; Diagnose wraps one of these with operation-specific context.
var (
	// ErrAllocation covers failed memory/buffer allocation for an
	// instance or its property arrays.
	ErrAllocation = errors.New("allocation failure")

	// ErrIdentity covers an id that can be neither parsed as a
	// canonical UUID nor turned into one deterministically.
	ErrIdentity = errors.New("identity failure")

	// ErrSchema covers an unknown type tag, a property referencing an
	// undeclared dimension, or a shape/size mismatch on load.
	ErrSchema = errors.New("schema violation")

	// ErrAbsentMember covers a dimension or property name that isn't
	// declared on the entity.
	ErrAbsentMember = errors.New("absent member")

	// ErrMissingCapability covers an optional driver method invoked on
	// a driver that doesn't implement it.
	ErrMissingCapability = errors.New("driver missing capability")

	// ErrDriverIO covers an opaque failure surfaced by a storage driver.
	ErrDriverIO = errors.New("driver I/O error")

	// ErrPluginResolution covers a named driver that couldn't be found
	// registered or on the plugin search path.
	ErrPluginResolution = errors.New("plugin resolution failure")
)

// Diagnose logs msg (formatted with args) at ERROR level and returns an
// error that wraps kind with that message, so %w-based errors.Is checks
// against the sentinels above keep working after it has been returned up
// the call stack.
func Diagnose(kind error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	logger.Error("%s: %s", msg, kind)
	return fmt.Errorf("%s: %w", msg, kind)
}

// MissingCapability builds the "driver lacks capability" diagnostic,
// naming both the driver and the capability.
func MissingCapability(driver, capability string) error {
	return Diagnose(ErrMissingCapability, "driver %q does not implement %s", driver, capability)
}
