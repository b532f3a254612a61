// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tomtom215/everly/internal/logging"
	"github.com/tomtom215/everly/internal/module"
)

// HealthChecker is implemented by *module.Manager.
type HealthChecker interface {
	HealthCheckAll(ctx context.Context) module.HealthReport
}

// HealthMonitorService polls module health on an interval so that the
// module health gauge stays current between /health requests, and logs
// status transitions.
type HealthMonitorService struct {
	checker  HealthChecker
	interval time.Duration
	timeout  time.Duration

	last atomic.Value // string
}

// NewHealthMonitorService polls checker every interval. A non-positive
// interval means 30s.
func NewHealthMonitorService(checker HealthChecker, interval time.Duration) *HealthMonitorService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := interval / 2
	if timeout > 10*time.Second {
		timeout = 10 * time.Second
	}
	return &HealthMonitorService{checker: checker, interval: interval, timeout: timeout}
}

// Serve implements suture.Service.
func (h *HealthMonitorService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.check(ctx)
		}
	}
}

// LastStatus returns the status of the most recent check, or "" before the
// first one.
func (h *HealthMonitorService) LastStatus() string {
	s, _ := h.last.Load().(string)
	return s
}

func (h *HealthMonitorService) check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report := h.checker.HealthCheckAll(ctx)
	if report.Status == h.LastStatus() {
		return
	}

	if report.Healthy() {
		logging.Info().Int("modules", report.TotalModules).Msg("all modules healthy")
	} else {
		ev := logging.Warn().Str("status", report.Status)
		for name, hs := range report.Modules {
			if !hs.Healthy() {
				ev = ev.Str(name, hs.Status)
			}
		}
		ev.Msg("module health degraded")
	}
	h.last.Store(report.Status)
}

func (h *HealthMonitorService) String() string { return "health-monitor" }
