package remonline

// Custom field identifiers in the Remonline account. The tag field marks
// records originating from the booking flow; the reference field carries
// the local appointment id so orders can be traced back.
const (
	CustomFieldClientTag      = "f5370833"
	CustomFieldAppointmentRef = "f5294178"

	// ClientTagValue is the fixed "prospective client" marker.
	ClientTagValue = "Потенційний клієнт"
)

// Client is a CRM client record as returned by the clients listing.
type Client struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Phones []string `json:"phone"`
}

// NewClient is the payload for creating a CRM client.
type NewClient struct {
	FirstName    string            `json:"first_name"`
	LastName     string            `json:"last_name"`
	Email        string            `json:"email,omitempty"`
	Phones       []string          `json:"phone"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// NewOrder is the payload for creating a CRM order. ScheduledFor is epoch
// milliseconds; Duration is minutes. Malfunction is the free-text order
// description shown to CRM operators.
type NewOrder struct {
	BranchID     int64             `json:"branch_id"`
	OrderType    int64             `json:"order_type"`
	Status       int64             `json:"status"`
	Email        string            `json:"email,omitempty"`
	Malfunction  string            `json:"malfunction,omitempty"`
	ClientID     int64             `json:"client_id"`
	Manager      int64             `json:"manager,omitempty"`
	Duration     int               `json:"duration"`
	ScheduledFor int64             `json:"scheduled_for"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
	AdCampaignID int64             `json:"ad_campaign_id,omitempty"`
}
