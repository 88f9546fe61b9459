// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package netsim

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"
	"gopkg.in/yaml.v3"
)

// Static errors for validation.
var (
	ErrInvalidDuration = errors.New("duration must be greater than 0")
	ErrInvalidCapacity = errors.New("capacity_ratio must be in (0, 100]")
	ErrInvalidMaxBurst = errors.New("max_burst_kbps must be greater than 0")
	ErrNoPhases        = errors.New("schedule has no phases")
)

// Phase holds the link for Duration.
type Phase struct {
	Duration      time.Duration `yaml:"duration"`
	CapacityRatio float64       `yaml:"capacity_ratio"`
	MaxBurstKbps  int           `yaml:"max_burst_kbps"`
}

// Validate checks a single phase.
func (p Phase) Validate() error {
	if p.Duration <= 0 {
		return ErrInvalidDuration
	}
	if p.CapacityRatio <= 0 || p.CapacityRatio > 100 {
		return ErrInvalidCapacity
	}
	if p.MaxBurstKbps <= 0 {
		return ErrInvalidMaxBurst
	}

	return nil
}

// Schedule is a sequence of phases relative to a reference capacity in bps.
type Schedule struct {
	ReferenceCapacity int     `yaml:"reference_capacity"`
	Phases            []Phase `yaml:"phases"`
}

// DefaultSchedule is a healthy link, a near outage and a recovery.
func DefaultSchedule() Schedule {
	return Schedule{
		ReferenceCapacity: 1 * vnet.MBit,
		Phases: []Phase{
			{Duration: 10 * time.Second, CapacityRatio: 1.0, MaxBurstKbps: 160},
			{Duration: 10 * time.Second, CapacityRatio: 0.05, MaxBurstKbps: 16},
			{Duration: 10 * time.Second, CapacityRatio: 2.5, MaxBurstKbps: 160},
		},
	}
}

// LoadSchedule reads a YAML schedule file.
func LoadSchedule(path string) (Schedule, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Schedule{}, err
	}

	return ParseSchedule(data)
}

// ParseSchedule decodes and validates a YAML schedule.
func ParseSchedule(data []byte) (Schedule, error) {
	schedule := Schedule{ReferenceCapacity: 1 * vnet.MBit}
	if err := yaml.Unmarshal(data, &schedule); err != nil {
		return Schedule{}, err
	}
	if len(schedule.Phases) == 0 {
		return Schedule{}, ErrNoPhases
	}
	if schedule.ReferenceCapacity <= 0 {
		return Schedule{}, fmt.Errorf("%w: reference_capacity %d", ErrInvalidCapacity, schedule.ReferenceCapacity)
	}
	for i, p := range schedule.Phases {
		if err := p.Validate(); err != nil {
			return Schedule{}, fmt.Errorf("phase %d: %w", i, err)
		}
	}

	return schedule, nil
}

// Duration is the total length of the schedule.
func (s Schedule) Duration() time.Duration {
	var total time.Duration
	for _, p := range s.Phases {
		total += p.Duration
	}

	return total
}

// Shaper is the part of Network a schedule drives.
type Shaper interface {
	SetCapacity(capacity, maxBurst int)
}

// Run applies each phase in turn. It returns early with ctx's error.
func (s Schedule) Run(ctx context.Context, shaper Shaper, log logging.LeveledLogger) error {
	for i, p := range s.Phases {
		capacity := int(float64(s.ReferenceCapacity) * p.CapacityRatio)
		log.Infof("enter phase %d: %d bps for %v", i, capacity, p.Duration)
		shaper.SetCapacity(capacity, p.MaxBurstKbps*vnet.KBit)

		timer := time.NewTimer(p.Duration)
		select {
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		case <-timer.C:
		}
	}

	return nil
}
