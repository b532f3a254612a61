// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package module

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/everly/internal/eventbus"
	"github.com/tomtom215/everly/internal/metrics"
)

// HealthReport aggregates the health of every registered module.
type HealthReport struct {
	Status       string                  `json:"status"`
	Modules      map[string]HealthStatus `json:"modules"`
	TotalModules int                     `json:"total_modules"`
	System       SystemInfo              `json:"system"`
}

// SystemInfo summarizes the shared infrastructure.
type SystemInfo struct {
	EventSubscribers     map[eventbus.EventType]int `json:"event_subscribers"`
	TotalSubscribers     int                        `json:"total_subscribers"`
	RegisteredServices   int                        `json:"registered_services"`
	RegisteredSingletons int                        `json:"registered_singletons"`
}

// Healthy reports whether the overall status is healthy.
func (r HealthReport) Healthy() bool {
	return r.Status == StatusHealthy
}

// HealthCheckAll runs every module's health check concurrently. The report
// is healthy only when every module reports healthy. A check that fails or
// panics is recorded as an error entry for that module and never aborts the
// others.
func (m *Manager) HealthCheckAll(ctx context.Context) HealthReport {
	mods := m.Modules()

	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make(map[string]HealthStatus, len(mods))
	)
	for _, mod := range mods {
		g.Go(func() error {
			hs := checkOne(ctx, mod)
			metrics.SetModuleHealth(mod.Name(), hs.Healthy())
			mu.Lock()
			results[mod.Name()] = hs
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := StatusHealthy
	for _, hs := range results {
		if !hs.Healthy() {
			status = StatusDegraded
			break
		}
	}

	subs := m.bus.ListSubscribers()
	total := 0
	for _, n := range subs {
		total += n
	}

	return HealthReport{
		Status:       status,
		Modules:      results,
		TotalModules: len(mods),
		System: SystemInfo{
			EventSubscribers:     subs,
			TotalSubscribers:     total,
			RegisteredServices:   len(m.container.ListServices()),
			RegisteredSingletons: len(m.container.ListSingletons()),
		},
	}
}

func checkOne(ctx context.Context, mod Module) (hs HealthStatus) {
	defer func() {
		if r := recover(); r != nil {
			hs = HealthStatus{Module: mod.Name(), Status: StatusError, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	hs, err := mod.HealthCheck(ctx)
	if err != nil {
		return HealthStatus{Module: mod.Name(), Status: StatusError, Error: err.Error()}
	}
	if hs.Module == "" {
		hs.Module = mod.Name()
	}
	return hs
}
