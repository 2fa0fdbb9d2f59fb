package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookingsync/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Appointment is the local booking record being synchronized.
type Appointment struct {
	ID           int64      `db:"id"`
	CustomerID   int64      `db:"customer_id"`
	ServiceID    int64      `db:"service_id"`
	ProviderID   *int64     `db:"provider_id"`
	BookingStart time.Time  `db:"booking_start"`
	BookingEnd   time.Time  `db:"booking_end"`
	Status       string     `db:"status"`
	ExternalID   string     `db:"external_id"`
	CreatedAt    time.Time  `db:"created_at"`
}

// BookingLink ties an appointment to the customer who booked it. An
// appointment without one is not a real booking and is never synced.
type BookingLink struct {
	ID            int64  `db:"id"`
	AppointmentID int64  `db:"appointment_id"`
	CustomerID    int64  `db:"customer_id"`
	Status        string `db:"status"`
}

// Customer is the local customer record. Read-only from this system's
// perspective.
type Customer struct {
	ID        int64  `db:"id"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
	Email     string `db:"email"`
	Phone     string `db:"phone"`
}

// ServiceInfo describes the booked service. Duration is minutes.
type ServiceInfo struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	Duration int    `db:"duration"`
}

// Provider is the staff member assigned to the appointment.
type Provider struct {
	ID        int64  `db:"id"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
}

// Datastore is the host application's booking data, plus the sync
// marker writes this system owns.
type Datastore interface {
	Appointment(ctx context.Context, id int64) (*Appointment, error)
	BookingLink(ctx context.Context, appointmentID int64) (*BookingLink, error)
	Customer(ctx context.Context, id int64) (*Customer, error)
	Service(ctx context.Context, id int64) (*ServiceInfo, error)
	Provider(ctx context.Context, id int64) (*Provider, error)
	ExternalID(ctx context.Context, appointmentID int64) (string, error)
	PersistExternalID(ctx context.Context, appointmentID int64, externalID string) error
	UnsyncedAppointments(ctx context.Context, olderThan time.Time, limit int) ([]int64, error)
}

// Repository implements Datastore over the scheduling application's
// Postgres tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new sync repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Appointment fetches an appointment by id.
func (r *Repository) Appointment(ctx context.Context, id int64) (*Appointment, error) {
	var appt Appointment
	var externalID *string
	err := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, service_id, provider_id, booking_start, booking_end, status, external_id, created_at
		 FROM appointments WHERE id = $1`, id,
	).Scan(&appt.ID, &appt.CustomerID, &appt.ServiceID, &appt.ProviderID,
		&appt.BookingStart, &appt.BookingEnd, &appt.Status, &externalID, &appt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Data(fmt.Sprintf("appointment %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("fetch appointment %d: %w", id, err)
	}
	if externalID != nil {
		appt.ExternalID = *externalID
	}
	return &appt, nil
}

// BookingLink fetches the customer booking row for an appointment.
func (r *Repository) BookingLink(ctx context.Context, appointmentID int64) (*BookingLink, error) {
	var link BookingLink
	err := r.pool.QueryRow(ctx,
		`SELECT id, appointment_id, customer_id, status
		 FROM customer_bookings WHERE appointment_id = $1`, appointmentID,
	).Scan(&link.ID, &link.AppointmentID, &link.CustomerID, &link.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Data(fmt.Sprintf("no booking link for appointment %d", appointmentID))
	}
	if err != nil {
		return nil, fmt.Errorf("fetch booking link for appointment %d: %w", appointmentID, err)
	}
	return &link, nil
}

// Customer fetches a customer by id.
func (r *Repository) Customer(ctx context.Context, id int64) (*Customer, error) {
	var customer Customer
	err := r.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, COALESCE(email, ''), COALESCE(phone, '')
		 FROM customers WHERE id = $1`, id,
	).Scan(&customer.ID, &customer.FirstName, &customer.LastName, &customer.Email, &customer.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Data(fmt.Sprintf("customer %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("fetch customer %d: %w", id, err)
	}
	return &customer, nil
}

// Service fetches a service by id. Callers degrade to placeholder values
// when the service is missing.
func (r *Repository) Service(ctx context.Context, id int64) (*ServiceInfo, error) {
	var svc ServiceInfo
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(duration, 0) FROM services WHERE id = $1`, id,
	).Scan(&svc.ID, &svc.Name, &svc.Duration)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("service %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("fetch service %d: %w", id, err)
	}
	return &svc, nil
}

// Provider fetches a provider by id. Missing providers are tolerated by
// callers.
func (r *Repository) Provider(ctx context.Context, id int64) (*Provider, error) {
	var provider Provider
	err := r.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name FROM providers WHERE id = $1`, id,
	).Scan(&provider.ID, &provider.FirstName, &provider.LastName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("provider %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("fetch provider %d: %w", id, err)
	}
	return &provider, nil
}

// ExternalID returns the appointment's sync marker; empty means "not yet
// synchronized".
func (r *Repository) ExternalID(ctx context.Context, appointmentID int64) (string, error) {
	var externalID *string
	err := r.pool.QueryRow(ctx,
		`SELECT external_id FROM appointments WHERE id = $1`, appointmentID,
	).Scan(&externalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.Data(fmt.Sprintf("appointment %d not found", appointmentID))
	}
	if err != nil {
		return "", fmt.Errorf("fetch external id for appointment %d: %w", appointmentID, err)
	}
	if externalID == nil {
		return "", nil
	}
	return *externalID, nil
}

// PersistExternalID writes the CRM order id onto the appointment. The
// write is skipped when the stored value already equals the target, and
// verified by re-reading afterwards; a mismatched read-back is a
// persistence failure.
func (r *Repository) PersistExternalID(ctx context.Context, appointmentID int64, externalID string) error {
	current, err := r.ExternalID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if current == externalID {
		return nil
	}

	if _, err := r.pool.Exec(ctx,
		`UPDATE appointments SET external_id = $1 WHERE id = $2`,
		externalID, appointmentID,
	); err != nil {
		return apperr.Wrap(apperr.KindPersistence,
			fmt.Sprintf("failed to write external id for appointment %d", appointmentID), err)
	}

	persisted, err := r.ExternalID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if persisted != externalID {
		return apperr.Persistence(fmt.Sprintf(
			"post-write verification failed for appointment %d: stored %q, expected %q",
			appointmentID, persisted, externalID))
	}
	return nil
}

// UnsyncedAppointments returns ids of booked appointments with no
// external id, created before olderThan, newest booking first.
func (r *Repository) UnsyncedAppointments(ctx context.Context, olderThan time.Time, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id
		 FROM appointments a
		 JOIN customer_bookings cb ON cb.appointment_id = a.id
		 WHERE (a.external_id IS NULL OR a.external_id = '')
		   AND a.created_at < $1
		 ORDER BY a.booking_start DESC
		 LIMIT $2`, olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unsynced appointments: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unsynced appointment id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
