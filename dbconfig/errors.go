package dbconfig

import (
	"errors"
	"fmt"
)

var (
	// ErrLocked is returned when a locked configuration is modified.
	ErrLocked = errors.New("configuration is locked")
	// ErrConfigurationSetTwice is returned when a configuration of a
	// different type is set after another one was already in use.
	ErrConfigurationSetTwice = errors.New("configuration set twice")
	// ErrDefaultConfigurationUsedBeforeSet is returned when a configuration
	// is set after the default configuration was already in use.
	ErrDefaultConfigurationUsedBeforeSet = errors.New("default configuration used before set")
	// ErrConfigurationNotDiscovered is returned when a module contains a
	// configuration type but the default configuration is already in use.
	ErrConfigurationNotDiscovered = errors.New("configuration not discovered")
	// ErrSetConfigurationNotDiscovered is returned when the configuration in
	// use differs from the one a context's module declares.
	ErrSetConfigurationNotDiscovered = errors.New("configuration in use differs from the discovered one")
	// ErrMultipleConfigsInAssembly is returned when a module declares more
	// than one configuration type.
	ErrMultipleConfigsInAssembly = errors.New("multiple configuration types in module")
	// ErrBadConfigurationType is returned for configuration types that cannot
	// be instantiated.
	ErrBadConfigurationType = errors.New("invalid configuration type")
	// ErrHandlerAfterLoad is returned when a Loaded handler is added after
	// the configuration was put to use.
	ErrHandlerAfterLoad = errors.New("cannot add a loaded handler to a configuration in use")
	// ErrNilRootResolver is returned when a nil root resolver is switched in.
	ErrNilRootResolver = errors.New("root resolver must not be nil")
	// ErrConfigurationLoading is returned when the default configuration is
	// requested while its Loaded handlers run.
	ErrConfigurationLoading = errors.New("configuration is being loaded")
	// ErrUnknownType is returned for type names missing from a Catalog.
	ErrUnknownType = errors.New("unknown type")
)

// LockedError reports a modification of a locked configuration.
type LockedError struct {
	// Member is the operation that was attempted.
	Member string
	// Owner is the name of the configuration type.
	Owner string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("cannot call %s: configuration %s is locked", e.Member, e.Owner)
}

// Unwrap allows errors.Is(err, ErrLocked).
func (e *LockedError) Unwrap() error { return ErrLocked }
