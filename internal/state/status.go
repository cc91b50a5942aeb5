package state

import (
	"context"
	"time"

	"github.com/dokzlo13/fujitsud/internal/climate"
)

// SharedStatus is the latest device status confirmed by the protocol task.
// The protocol task is its only writer; the front-end reads copies.
type SharedStatus struct {
	g      guard
	status climate.DeviceStatus
}

// NewSharedStatus creates a SharedStatus holding climate.DefaultStatus.
func NewSharedStatus(lockTimeout time.Duration) *SharedStatus {
	return &SharedStatus{
		g:      newGuard("shared status", lockTimeout),
		status: climate.DefaultStatus(),
	}
}

// Snapshot returns a copy of the confirmed status.
func (s *SharedStatus) Snapshot(ctx context.Context) (climate.DeviceStatus, error) {
	var out climate.DeviceStatus
	err := s.g.do(ctx, func() {
		out = s.status
	})
	return out, err
}

// Store replaces the confirmed status.
func (s *SharedStatus) Store(ctx context.Context, status climate.DeviceStatus) error {
	return s.g.do(ctx, func() {
		s.status = status
	})
}

// View runs fn with a copy of the confirmed status while the guard is held.
// fn must not block for long; other readers and the protocol task wait on it.
func (s *SharedStatus) View(ctx context.Context, fn func(climate.DeviceStatus)) error {
	return s.g.do(ctx, func() {
		fn(s.status)
	})
}
