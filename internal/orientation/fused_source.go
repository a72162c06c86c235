// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"fmt"
	"time"
)

type fusedSource struct {
	readings ReadingSource
	filter   *Filter
	nominal  time.Duration
	last     time.Time
}

// NewFusedSource returns a Source that runs every reading through filter.
// The time step comes from the reading timestamps; nominal is used for the
// first reading and whenever timestamps do not move forward.
func NewFusedSource(readings ReadingSource, filter *Filter, nominal time.Duration) Source {
	return &fusedSource{readings: readings, filter: filter, nominal: nominal}
}

func (s *fusedSource) Next() (Pose, error) {
	r, err := s.readings.NextReading()
	if err != nil {
		return Pose{}, fmt.Errorf("fused source: %w", err)
	}

	dt := Interval(s.last, r.Time, s.nominal)
	s.last = r.Time

	return PoseFromEuler(s.filter.Update(r.Accel, r.Gyro, dt)), nil
}

// Interval returns the seconds between two sample timestamps, or nominal
// when there is no previous sample or the clock did not advance.
func Interval(prev, cur time.Time, nominal time.Duration) float64 {
	if prev.IsZero() || !cur.After(prev) {
		return nominal.Seconds()
	}
	return cur.Sub(prev).Seconds()
}
