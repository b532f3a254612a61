// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package module

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateModule is returned by Register for a name already in use.
	ErrDuplicateModule = errors.New("module already registered")

	// ErrAlreadyInitialized is returned when Initialize runs twice.
	ErrAlreadyInitialized = errors.New("module already initialized")

	// ErrNotInitialized is returned when Cleanup runs before Initialize.
	ErrNotInitialized = errors.New("module not initialized")
)

// MissingDependencyError names a dependency that is not registered.
type MissingDependencyError struct {
	Module     string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("module %q depends on unregistered module %q", e.Module, e.Dependency)
}

// CycleError reports a dependency cycle. Path starts and ends with the same
// module.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "circular module dependency: " + strings.Join(e.Path, " -> ")
}

// InitError wraps the failure of one module's Initialize.
type InitError struct {
	Module string
	Err    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize module %q: %v", e.Module, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }
