// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package learning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// MaintenanceStore is the part of the knowledge store maintenance needs.
type MaintenanceStore interface {
	PruneLearnings(ctx context.Context, cutoff time.Time) (int, error)
	CollapseDuplicateLearnings(ctx context.Context) (int, error)
}

// MaintenanceConfig configures periodic maintenance.
type MaintenanceConfig struct {
	// Schedule is a standard cron expression or descriptor (default @daily).
	Schedule string

	// RetentionDays prunes learnings older than this; 0 keeps everything.
	RetentionDays int
}

// Report is the outcome of one maintenance pass.
type Report struct {
	Pruned    int
	Collapsed int
}

// Maintenance prunes old learnings and collapses duplicates on a schedule.
type Maintenance struct {
	store MaintenanceStore
	cfg   MaintenanceConfig
	cron  *cron.Cron
	now   func() time.Time

	mu      sync.Mutex
	running bool
	entry   cron.EntryID
}

// NewMaintenance validates the schedule and creates a stopped scheduler.
func NewMaintenance(store MaintenanceStore, cfg MaintenanceConfig) (*Maintenance, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "@daily"
	}
	if cfg.RetentionDays < 0 {
		return nil, fmt.Errorf("retention_days must be >= 0, got %d", cfg.RetentionDays)
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", cfg.Schedule, err)
	}
	return &Maintenance{
		store: store,
		cfg:   cfg,
		cron:  cron.New(),
		now:   time.Now,
	}, nil
}

// RunOnce runs one maintenance pass now.
func (m *Maintenance) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	if m.cfg.RetentionDays > 0 {
		cutoff := m.now().AddDate(0, 0, -m.cfg.RetentionDays)
		n, err := m.store.PruneLearnings(ctx, cutoff)
		if err != nil {
			return report, fmt.Errorf("failed to prune learnings: %w", err)
		}
		report.Pruned = n
	}

	n, err := m.store.CollapseDuplicateLearnings(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to collapse duplicate learnings: %w", err)
	}
	report.Collapsed = n
	return report, nil
}

// Start schedules RunOnce. Jobs use ctx, so cancelling it aborts a pass in
// progress; call Stop to end the schedule.
func (m *Maintenance) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	entry, err := m.cron.AddFunc(m.cfg.Schedule, func() {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		report, err := m.RunOnce(ctx)
		if err != nil {
			zap.L().Error("learning maintenance failed", zap.Error(err))
			return
		}
		zap.L().Info("learning maintenance finished",
			zap.Int("pruned", report.Pruned),
			zap.Int("collapsed", report.Collapsed),
			zap.Duration("duration", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	m.entry = entry
	m.cron.Start()
	m.running = true

	zap.L().Info("learning maintenance scheduled",
		zap.String("schedule", m.cfg.Schedule),
		zap.Int("retention_days", m.cfg.RetentionDays))
	return nil
}

// Stop ends the schedule and waits for a running pass to finish.
func (m *Maintenance) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	<-m.cron.Stop().Done()
	m.cron.Remove(m.entry)
	m.running = false
}
