// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
manager.go - Delivery Manager

Generalizes the teacher's newsletter internal/newsletter/delivery.Manager
(retry/backoff, worker-pool fan-out across recipients and channels) down to
the one-recipient, one-channel shape spec §4.L actually needs: a
subscription or alert fires exactly once per due tick, so there is no
recipient list to fan out across. What the teacher's Manager didn't need
but this one does is durable idempotency - a scheduler tick that crashes
after sending but before marking a subscription's next_run_at must not
re-send on the next poll, so every Deliver call is keyed by an idempotency
key checked against the notification_deliveries table before anything is
sent.
*/
package delivery

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/metrics"
	"github.com/sparklytics/engine/internal/models"
)

// DB is the subset of *database.DB this package needs.
type DB interface {
	Conn() *sql.DB
	WriteLock() *sync.Mutex
}

// Manager resolves idempotency and dispatches to the registered Channel,
// wrapping each channel's Send in its own circuit breaker so a flapping
// relay or endpoint fails fast instead of stalling the caller.
type Manager struct {
	db       DB
	registry *Registry
	breakers map[models.DeliveryChannel]*gobreaker.CircuitBreaker[struct{}]
}

// NewManager constructs a Manager over the given registry, one circuit
// breaker per registered channel.
func NewManager(db DB, registry *Registry, channels ...models.DeliveryChannel) *Manager {
	breakers := make(map[models.DeliveryChannel]*gobreaker.CircuitBreaker[struct{}], len(channels))
	for _, ch := range channels {
		name := ch
		breakers[name] = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "delivery-" + string(name),
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				metrics.RecordCircuitBreakerTransition(name, from.String(), to.String())
			},
		})
	}
	return &Manager{db: db, registry: registry, breakers: breakers}
}

// Deliver sends msg over channel unless idempotencyKey has already been
// recorded in notification_deliveries, in which case it returns the
// previously recorded status without re-sending. sourceType/sourceID
// identify the subscription or alert rule that triggered this delivery.
func (m *Manager) Deliver(ctx context.Context, sourceType models.DeliverySourceType, sourceID int64, idempotencyKey string, channel models.DeliveryChannel, msg Message) (models.DeliveryStatus, error) {
	if status, ok, err := m.existingStatus(ctx, idempotencyKey); err != nil {
		return "", err
	} else if ok {
		return status, nil
	}

	ch, ok := m.registry.Get(channel)
	if !ok {
		return "", apperr.Newf(apperr.KindBadRequest, "unknown delivery channel %q", channel)
	}

	sendErr := m.send(ctx, channel, ch, msg)
	metrics.RecordDelivery(string(channel), sendErr == nil)

	status := models.DeliveryStatusSent
	errMsg := ""
	if sendErr != nil {
		status = models.DeliveryStatusFailed
		errMsg = sendErr.Error()
	}

	if err := m.recordDelivery(ctx, sourceType, sourceID, idempotencyKey, status, errMsg); err != nil {
		return status, err
	}

	return status, sendErr
}

func (m *Manager) send(ctx context.Context, channel models.DeliveryChannel, ch Channel, msg Message) error {
	breaker, ok := m.breakers[channel]
	if !ok {
		return ch.Send(ctx, msg)
	}

	_, err := breaker.Execute(func() (struct{}, error) {
		return struct{}{}, ch.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.New(apperr.KindRateLimited, "delivery breaker is open after repeated failures")
	}
	return err
}

func (m *Manager) existingStatus(ctx context.Context, idempotencyKey string) (models.DeliveryStatus, bool, error) {
	var status models.DeliveryStatus
	err := m.db.Conn().QueryRowContext(ctx,
		`SELECT status FROM notification_deliveries WHERE idempotency_key = ?`, idempotencyKey,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Wrap(apperr.KindInternal, err, "failed to check delivery idempotency")
	}
	return status, true, nil
}

func (m *Manager) recordDelivery(ctx context.Context, sourceType models.DeliverySourceType, sourceID int64, idempotencyKey string, status models.DeliveryStatus, errMsg string) error {
	m.db.WriteLock().Lock()
	defer m.db.WriteLock().Unlock()

	_, err := m.db.Conn().ExecContext(ctx,
		`INSERT INTO notification_deliveries (source_type, source_id, idempotency_key, status, error_message)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		sourceType, sourceID, idempotencyKey, status, errMsg,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "failed to record delivery")
	}
	return nil
}
