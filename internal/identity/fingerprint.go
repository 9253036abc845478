// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
fingerprint.go - Visitor Fingerprinting & Salt Rotation

Derives the process-wide visitor identity the way spec §3/§4.B describes:
sha256(salt||ip||user_agent), truncated to 16 hex characters. The salt
rotates at local midnight UTC; the previous salt remains valid for a grace
period so sessions don't split across the boundary.
*/

package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/sparklytics/engine/internal/logging"
)

const fingerprintLength = 16

// Fingerprint derives the 16-hex-digit visitor identity for a given salt.
func Fingerprint(salt []byte, ip, userAgent string) string {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(ip))
	h.Write([]byte(userAgent))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:fingerprintLength]
}

// SaltManager holds the current and previous daily salts and rotates them
// at local midnight UTC, matching spec §4.B exactly.
type SaltManager struct {
	mu           sync.RWMutex
	current      []byte
	previous     []byte
	gracePeriod  time.Duration
	rotatedAt    time.Time
	previousDead bool
}

// NewSaltManager constructs a SaltManager with a freshly generated current
// salt and no previous salt.
func NewSaltManager(gracePeriod time.Duration) (*SaltManager, error) {
	salt, err := randomSalt()
	if err != nil {
		return nil, err
	}
	return &SaltManager{
		current:      salt,
		gracePeriod:  gracePeriod,
		rotatedAt:    time.Now().UTC(),
		previousDead: true,
	}, nil
}

func randomSalt() ([]byte, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// Current returns the salt to use for producing new identities.
func (s *SaltManager) Current() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]byte, len(s.current))
	copy(out, s.current)
	return out
}

// Verify reports whether id was produced by the current salt, or by the
// previous salt if still within its grace period.
func (s *SaltManager) Verify(id, ip, userAgent string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if Fingerprint(s.current, ip, userAgent) == id {
		return true
	}
	if !s.previousDead && s.previous != nil {
		if Fingerprint(s.previous, ip, userAgent) == id {
			return true
		}
	}
	return false
}

// Rotate moves the current salt into previous, generates a fresh current
// salt, and schedules previous's purge after the grace period. Called by
// the supervised midnight-tick goroutine in rotation.go.
func (s *SaltManager) Rotate() error {
	newSalt, err := randomSalt()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.previous = s.current
	s.previousDead = false
	s.current = newSalt
	s.rotatedAt = time.Now().UTC()
	s.mu.Unlock()

	logging.Info().Msg("Rotated visitor identity salt")
	return nil
}

// PurgePreviousIfExpired clears the previous salt once the grace period has
// elapsed since the last rotation.
func (s *SaltManager) PurgePreviousIfExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.previousDead && time.Since(s.rotatedAt) >= s.gracePeriod {
		s.previous = nil
		s.previousDead = true
	}
}
