package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"bookingsync/internal/events"
	"bookingsync/platform/apperr"
	"bookingsync/platform/config"
	"bookingsync/platform/logger"
)

// Service runs the outbound synchronization workflow: one appointment in,
// one CRM order id persisted (or a typed error explaining which stage broke).
type Service struct {
	store    Datastore
	resolver *Resolver
	orders   *OrderCreator
	locks    Locker
	bus      events.Bus
	cfg      config.SyncConfig
	log      *logger.Logger
	now      func() time.Time
}

func NewService(store Datastore, resolver *Resolver, orders *OrderCreator, locks Locker, bus events.Bus, cfg config.SyncConfig, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		resolver: resolver,
		orders:   orders,
		locks:    locks,
		bus:      bus,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Enqueuer hands an appointment to the background worker instead of
// synchronizing it on the caller's goroutine.
type Enqueuer interface {
	EnqueueSyncAppointment(ctx context.Context, appointmentID int64) error
}

// RegisterHandlers subscribes the service to booking events so new
// appointments are synchronized as they are created. With a queue the
// event only enqueues a task and the worker does the CRM calls; without
// one (or when enqueueing fails) the sync runs inline so the booking
// still reaches the CRM.
func (s *Service) RegisterHandlers(bus events.Bus, queue Enqueuer) {
	bus.Subscribe(events.BookingCreated{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.BookingCreated)
		if !ok {
			return fmt.Errorf("unexpected event type %T", event)
		}
		if queue != nil {
			if err := queue.EnqueueSyncAppointment(ctx, e.AppointmentID); err == nil {
				return nil
			} else {
				s.log.WithAppointment(e.AppointmentID).Warn("enqueue failed, syncing inline", slog.String("error", err.Error()))
			}
		}
		return s.SyncAppointment(ctx, e.AppointmentID)
	}))
}

// SyncAppointment pushes one appointment into the CRM. It is safe to call
// repeatedly: already-synced appointments short-circuit, and a per-appointment
// lock keeps concurrent invocations from creating duplicate orders.
func (s *Service) SyncAppointment(ctx context.Context, appointmentID int64) (err error) {
	if !s.cfg.IsIntegrationEnabled() {
		return nil
	}

	log := s.log.WithAppointment(appointmentID)

	lockKey := strconv.FormatInt(appointmentID, 10)
	acquired, err := s.locks.Acquire(ctx, lockKey)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "sync lock acquisition failed", err)
	}
	if !acquired {
		log.Info("sync already in progress, skipping")
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panicked: %v", r)
			log.Error("sync panicked", slog.Any("panic", r))
		}
		// Release on a detached context so a caller timeout cannot leave
		// the lock held until its TTL expires.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if releaseErr := s.locks.Release(releaseCtx, lockKey); releaseErr != nil {
			log.Warn("sync lock release failed", slog.String("error", releaseErr.Error()))
		}
	}()

	appointment, err := s.store.Appointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	if appointment.ExternalID != "" {
		log.Info("appointment already synced", slog.String("external_id", appointment.ExternalID))
		return nil
	}

	// Re-read the marker right before the remote write. Another process may
	// have finished between the lock check and now.
	externalID, err := s.store.ExternalID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if externalID != "" {
		log.Info("appointment already synced", slog.String("external_id", externalID))
		return nil
	}

	if _, err := s.store.BookingLink(ctx, appointmentID); err != nil {
		return err
	}

	customer, err := s.store.Customer(ctx, appointment.CustomerID)
	if err != nil {
		return err
	}

	// The order can still be created without service details; duration
	// falls back to the default.
	service, err := s.store.Service(ctx, appointment.ServiceID)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			return err
		}
		log.Warn("service record missing, using default duration", slog.Int64("service_id", appointment.ServiceID))
		service = nil
	}

	// The provider only feeds the order description, so a missing record
	// is tolerated too.
	var provider *Provider
	if appointment.ProviderID != nil {
		provider, err = s.store.Provider(ctx, *appointment.ProviderID)
		if err != nil {
			if !apperr.Is(err, apperr.KindNotFound) {
				return err
			}
			log.Warn("provider record missing, omitting from order", slog.Int64("provider_id", *appointment.ProviderID))
			provider = nil
		}
	}

	clientID, err := s.resolver.Resolve(ctx, customer)
	if err != nil {
		return err
	}

	orderID, err := s.orders.Create(ctx, appointment, customer, service, provider, clientID)
	if err != nil {
		return err
	}

	orderRef := strconv.FormatInt(orderID, 10)
	if err := s.store.PersistExternalID(ctx, appointmentID, orderRef); err != nil {
		return err
	}

	s.bus.Publish(ctx, events.OrderSynced{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: appointmentID,
		OrderID:       orderRef,
		ClientID:      clientID,
	})

	log.Info("appointment synced", slog.String("external_id", orderRef), slog.Int64("client_id", clientID))
	return nil
}

// SweepResult summarizes one pass over the unsynced backlog.
type SweepResult struct {
	Scanned int
	Synced  int
	Failed  int
}

// Sweep finds appointments that never made it to the CRM and retries them,
// newest bookings first. Failures are logged per appointment and never stop
// the rest of the batch.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	if !s.cfg.IsIntegrationEnabled() {
		return result, nil
	}

	olderThan := s.now().Add(-s.cfg.GetSweepMinAge())
	ids, err := s.store.UnsyncedAppointments(ctx, olderThan, s.cfg.GetSweepBatchSize())
	if err != nil {
		return result, err
	}
	result.Scanned = len(ids)

	for _, id := range ids {
		if err := s.SyncAppointment(ctx, id); err != nil {
			result.Failed++
			s.log.WithAppointment(id).Error("sweep sync failed", slog.String("error", err.Error()))
			continue
		}
		result.Synced++
	}

	if result.Scanned > 0 {
		s.log.Info("sweep finished",
			slog.Int("scanned", result.Scanned),
			slog.Int("synced", result.Synced),
			slog.Int("failed", result.Failed))
	}
	return result, nil
}
