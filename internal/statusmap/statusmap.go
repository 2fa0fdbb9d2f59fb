// Package statusmap translates Remonline order statuses and timestamps
// into their local booking equivalents. Everything here is pure.
package statusmap

import "time"

// Local appointment statuses understood by the scheduling application.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusCanceled  = "canceled"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
)

// Remonline status ids relevant to the booking flow.
const (
	RemoteStatusAutoBooking = 1642511 // "Автозапис"
	RemoteStatusInProgress  = 1342663 // "Новий"
	RemoteStatusCompleted   = 1342658 // "Виконано"
	RemoteStatusCanceled    = 1342652 // "Відмінено"
)

// statusTable is the single canonical mapping applied on every inbound
// path. Unknown remote codes deliberately fall back to pending instead
// of failing the update.
var statusTable = map[int64]string{
	RemoteStatusAutoBooking: StatusPending,
	RemoteStatusInProgress:  StatusApproved,
	RemoteStatusCompleted:   StatusCompleted,
	RemoteStatusCanceled:    StatusCanceled,
}

// MapStatus translates a Remonline status id to the local status enum.
func MapStatus(remoteStatusID int64) string {
	if status, ok := statusTable[remoteStatusID]; ok {
		return status
	}
	return StatusPending
}

// IsValidLocalStatus reports whether the scheduling application accepts
// the given status value.
func IsValidLocalStatus(status string) bool {
	switch status {
	case StatusPending, StatusApproved, StatusCanceled, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// MillisToUTC converts epoch milliseconds to a UTC wall-clock time.
// Stored times are always UTC; no local zone offset is ever applied.
func MillisToUTC(ms int64) time.Time {
	return time.Unix(ms/1000, 0).UTC()
}

// FormatUTC renders a time in the datastore's wall-clock layout.
func FormatUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
