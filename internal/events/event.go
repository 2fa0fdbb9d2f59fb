// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"bookingsync/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// =============================================================================
// Booking Domain Events (host application -> sync)
// =============================================================================

// BookingCreated is published when the scheduling application records a
// new appointment. It triggers the outbound synchronization workflow.
type BookingCreated struct {
	BaseEvent
	AppointmentID int64 `json:"appointmentId"`
}

func (e BookingCreated) EventName() string { return "booking.created" }

// =============================================================================
// Sync Domain Events (outbound workflow)
// =============================================================================

// OrderSynced is published after an appointment's CRM order id has been
// persisted to its externalId field.
type OrderSynced struct {
	BaseEvent
	AppointmentID int64  `json:"appointmentId"`
	OrderID       string `json:"orderId"`
	ClientID      int64  `json:"clientId"`
}

func (e OrderSynced) EventName() string { return "sync.order.synced" }

// =============================================================================
// Reconciliation Domain Events (inbound webhook -> host application)
// =============================================================================

// AppointmentStatusChanged is published when a CRM status change has been
// written back onto the local appointment and its booking link.
type AppointmentStatusChanged struct {
	BaseEvent
	AppointmentID int64  `json:"appointmentId"`
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
}

func (e AppointmentStatusChanged) EventName() string { return "appointment.status.changed" }

// AppointmentTimeUpdated is published when a CRM reschedule has been
// written back onto the local appointment.
type AppointmentTimeUpdated struct {
	BaseEvent
	AppointmentID int64     `json:"appointmentId"`
	OrderID       string    `json:"orderId"`
	NewStart      time.Time `json:"newStart"`
	NewEnd        time.Time `json:"newEnd"`
}

func (e AppointmentTimeUpdated) EventName() string { return "appointment.time.updated" }
