package sync

import (
	"context"
	"log/slog"
	"strings"

	"bookingsync/internal/remonline"
	"bookingsync/platform/apperr"
	"bookingsync/platform/logger"
	"bookingsync/platform/phone"
)

// maxScanPages bounds the full-directory scan so a misbehaving pagination
// endpoint cannot spin forever.
const maxScanPages = 200

// Resolver maps a local customer onto a CRM client id, creating the client
// when no existing one matches by email or phone.
type Resolver struct {
	api    CRMAPI
	tokens TokenSource
	log    *logger.Logger
}

func NewResolver(api CRMAPI, tokens TokenSource, log *logger.Logger) *Resolver {
	return &Resolver{api: api, tokens: tokens, log: log}
}

// Resolve returns the CRM client id for the customer. Matching is exact on
// normalized email or canonical phone across the full client directory; a
// miss falls through to creation, and a failed creation gets one relaxed
// rescan before the resolution is declared failed.
func (r *Resolver) Resolve(ctx context.Context, customer *Customer) (int64, error) {
	email := strings.ToLower(strings.TrimSpace(customer.Email))
	canonicalPhone := phone.Canonical(customer.Phone)

	if email == "" && canonicalPhone == "" {
		return 0, apperr.Resolution("customer has neither email nor phone")
	}

	id, err := r.scan(ctx, func(c remonline.Client) bool {
		if email != "" && strings.ToLower(strings.TrimSpace(c.Email)) == email {
			return true
		}
		for _, p := range c.Phones {
			if canonicalPhone != "" && phone.Canonical(p) == canonicalPhone {
				return true
			}
		}
		return false
	})
	if err != nil {
		return 0, err
	}
	if id != 0 {
		return id, nil
	}

	id, createErr := r.create(ctx, customer, canonicalPhone)
	if createErr == nil {
		return id, nil
	}
	r.log.Warn("crm client creation failed, retrying lookup with relaxed matching",
		slog.String("email", email),
		slog.String("error", createErr.Error()))

	// The CRM rejects duplicates it detects itself, so a creation failure
	// often means the client exists under a slightly different phone form.
	id, err = r.scan(ctx, func(c remonline.Client) bool {
		for _, p := range c.Phones {
			if canonicalPhone != "" && lastDigits(p, 10) == lastDigits(canonicalPhone, 10) {
				return true
			}
		}
		return email != "" && strings.ToLower(strings.TrimSpace(c.Email)) == email
	})
	if err != nil {
		return 0, err
	}
	if id != 0 {
		return id, nil
	}

	return 0, apperr.Wrap(apperr.KindResolution, "could not find or create crm client", createErr)
}

// scan walks the paginated client directory until an empty page and returns
// the id of the first client the predicate accepts, or zero.
func (r *Resolver) scan(ctx context.Context, match func(remonline.Client) bool) (int64, error) {
	for page := 1; page <= maxScanPages; page++ {
		var clients []remonline.Client
		err := withToken(ctx, r.tokens, func(token string) error {
			var listErr error
			clients, listErr = r.api.ListClients(ctx, token, page)
			return listErr
		})
		if err != nil {
			return 0, apperr.Wrap(apperr.KindResolution, "crm client listing failed", err)
		}
		if len(clients) == 0 {
			return 0, nil
		}
		for _, c := range clients {
			if match(c) {
				return c.ID, nil
			}
		}
	}
	r.log.Warn("client scan hit the page cap without an empty page", slog.Int("pages", maxScanPages))
	return 0, nil
}

func (r *Resolver) create(ctx context.Context, customer *Customer, canonicalPhone string) (int64, error) {
	newClient := remonline.NewClient{
		FirstName: customer.FirstName,
		LastName:  customer.LastName,
		Email:     strings.TrimSpace(customer.Email),
		CustomFields: map[string]string{
			remonline.CustomFieldClientTag: remonline.ClientTagValue,
		},
	}
	if canonicalPhone != "" {
		newClient.Phones = []string{phone.NormalizeE164(customer.Phone)}
	}

	var id int64
	err := withToken(ctx, r.tokens, func(token string) error {
		var createErr error
		id, createErr = r.api.CreateClient(ctx, token, newClient)
		return createErr
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func lastDigits(s string, n int) string {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) > n {
		digits = digits[len(digits)-n:]
	}
	return string(digits)
}
