// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
rotation.go - Suture Service Wrapping Salt Rotation

RotationService implements suture.Service so the supervisor tree can
restart the rotation loop on panic without taking down the process,
mirroring how the teacher wraps its own background loops for supervision.
*/

package identity

import (
	"context"
	"time"
)

// RotationService ticks once a minute, rotating the salt at local midnight
// UTC and purging the previous salt once its grace period elapses.
type RotationService struct {
	salts *SaltManager
	clock func() time.Time
}

// NewRotationService constructs a RotationService bound to salts.
func NewRotationService(salts *SaltManager) *RotationService {
	return &RotationService{salts: salts, clock: time.Now}
}

// Serve implements suture.Service.
func (r *RotationService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	lastRotatedDay := r.clock().UTC().YearDay()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			utc := now.UTC()
			if utc.YearDay() != lastRotatedDay && utc.Hour() == 0 {
				if err := r.salts.Rotate(); err != nil {
					return err
				}
				lastRotatedDay = utc.YearDay()
			}
			r.salts.PurgePreviousIfExpired()
		}
	}
}
