// Package webhook reconciles CRM-originated changes back onto local
// appointments. Its endpoints are authenticated with the shared webhook
// secret and look appointments up by the externalId sync marker.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookingsync/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Appointment is the slice of the local booking the inbound path touches.
type Appointment struct {
	ID           int64
	BookingStart time.Time
	BookingEnd   time.Time
	Status       string
	ExternalID   string
}

// Datastore is the inbound reconciliation persistence surface.
type Datastore interface {
	FindByExternalID(ctx context.Context, externalID string) (*Appointment, error)
	UpdateStatus(ctx context.Context, appointmentID int64, status string) error
	UpdateTimes(ctx context.Context, appointmentID int64, start, end time.Time) error
}

// Repository implements Datastore over the scheduling application's tables.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByExternalID fetches the appointment linked to a CRM order id.
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*Appointment, error) {
	var appt Appointment
	err := r.pool.QueryRow(ctx,
		`SELECT id, booking_start, booking_end, status, external_id
		 FROM appointments WHERE external_id = $1`, externalID,
	).Scan(&appt.ID, &appt.BookingStart, &appt.BookingEnd, &appt.Status, &appt.ExternalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("no appointment linked to order %s", externalID))
	}
	if err != nil {
		return nil, fmt.Errorf("find appointment by external id %s: %w", externalID, err)
	}
	return &appt, nil
}

// UpdateStatus writes the new status to the appointment and its booking
// link in one transaction so the two rows never disagree.
func (r *Repository) UpdateStatus(ctx context.Context, appointmentID int64, status string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "begin status update", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE appointments SET status = $1 WHERE id = $2`, status, appointmentID)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "update appointment status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(fmt.Sprintf("appointment %d not found", appointmentID))
	}

	if _, err := tx.Exec(ctx,
		`UPDATE customer_bookings SET status = $1 WHERE appointment_id = $2`, status, appointmentID); err != nil {
		return apperr.Wrap(apperr.KindPersistence, "update booking link status", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindPersistence, "commit status update", err)
	}
	return nil
}

// UpdateTimes writes the rescheduled interval to the appointment.
func (r *Repository) UpdateTimes(ctx context.Context, appointmentID int64, start, end time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE appointments SET booking_start = $1, booking_end = $2 WHERE id = $3`,
		start, end, appointmentID)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "update appointment times", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(fmt.Sprintf("appointment %d not found", appointmentID))
	}
	return nil
}
