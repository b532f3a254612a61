// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package container

// ServiceRegistry registers the standard per-module services on a Container.
type ServiceRegistry struct {
	c *Container
}

// NewServiceRegistry wraps c.
func NewServiceRegistry(c *Container) *ServiceRegistry {
	return &ServiceRegistry{c: c}
}

// ModuleService returns the key "<module>.<service>".
func ModuleService(module, service string) string {
	return module + "." + service
}

// RegisterModuleServices registers "<module>.database" and, when cache is
// non-nil, "<module>.cache".
func (r *ServiceRegistry) RegisterModuleServices(module string, db, cache any) {
	r.c.RegisterService(ModuleService(module, "database"), db)
	if cache != nil {
		r.c.RegisterService(ModuleService(module, "cache"), cache)
	}
}
