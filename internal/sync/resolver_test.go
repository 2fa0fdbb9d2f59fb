package sync

import (
	"context"
	"errors"
	"testing"

	"bookingsync/internal/remonline"
	"bookingsync/platform/apperr"
	"bookingsync/platform/logger"
)

func newTestResolver(crm *fakeCRM) *Resolver {
	log := logger.New("development", "error")
	return NewResolver(crm, &fakeTokens{current: "tok", next: "tok2"}, log)
}

func TestResolveMatchesExistingClientByEmail(t *testing.T) {
	crm := &fakeCRM{pages: [][]remonline.Client{
		{{ID: 10, Email: "other@example.com"}},
		{{ID: 11, Email: "A@B.com"}},
	}}
	resolver := newTestResolver(crm)

	id, err := resolver.Resolve(context.Background(), &Customer{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if id != 11 {
		t.Fatalf("expected client 11, got %d", id)
	}
	if len(crm.createdClients) != 0 {
		t.Fatal("expected no client creation on a match")
	}
}

func TestResolveMatchesExistingClientByPhoneAcrossFormats(t *testing.T) {
	crm := &fakeCRM{pages: [][]remonline.Client{
		{{ID: 20, Phones: []string{"+38 (050) 111-22-33"}}},
	}}
	resolver := newTestResolver(crm)

	id, err := resolver.Resolve(context.Background(), &Customer{Phone: "0501112233"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if id != 20 {
		t.Fatalf("expected client 20, got %d", id)
	}
}

func TestResolveCreatesClientWhenNoMatch(t *testing.T) {
	crm := &fakeCRM{
		pages:        [][]remonline.Client{{{ID: 30, Email: "someone@else.com"}}},
		nextClientID: 31,
	}
	resolver := newTestResolver(crm)

	id, err := resolver.Resolve(context.Background(), &Customer{
		FirstName: "Ivan",
		LastName:  "Petrenko",
		Email:     "new@example.com",
		Phone:     "0501112233",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if id != 31 {
		t.Fatalf("expected created client 31, got %d", id)
	}
	if len(crm.createdClients) != 1 {
		t.Fatalf("expected one creation, got %d", len(crm.createdClients))
	}
	created := crm.createdClients[0]
	if created.CustomFields[remonline.CustomFieldClientTag] != remonline.ClientTagValue {
		t.Fatal("expected prospective-client tag on creation")
	}
	if len(created.Phones) != 1 || created.Phones[0] != "+380501112233" {
		t.Fatalf("expected E.164 phone on creation, got %v", created.Phones)
	}
}

func TestResolveFallsBackToRelaxedPhoneMatchAfterCreationFailure(t *testing.T) {
	// The CRM stores the number in yet another format; exact canonical
	// comparison misses it, creation is refused as a duplicate, and the
	// relaxed last-digits rescan finds it.
	crm := &fakeCRM{
		pages:           [][]remonline.Client{{{ID: 40, Phones: []string{"8-050-111-22-33"}}}},
		createClientErr: errors.New("duplicate phone"),
	}
	resolver := newTestResolver(crm)

	id, err := resolver.Resolve(context.Background(), &Customer{Phone: "0501112233"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if id != 40 {
		t.Fatalf("expected relaxed match on client 40, got %d", id)
	}
}

func TestResolveFailsWhenCreationAndRescanExhausted(t *testing.T) {
	crm := &fakeCRM{
		pages:           [][]remonline.Client{},
		createClientErr: errors.New("rejected"),
	}
	resolver := newTestResolver(crm)

	_, err := resolver.Resolve(context.Background(), &Customer{Email: "x@y.com", Phone: "0501112233"})
	if err == nil {
		t.Fatal("expected resolution failure")
	}
	if !apperr.Is(err, apperr.KindResolution) {
		t.Fatalf("expected resolution error, got %v", err)
	}
}

func TestResolveRejectsCustomerWithoutContactDetails(t *testing.T) {
	resolver := newTestResolver(&fakeCRM{})

	_, err := resolver.Resolve(context.Background(), &Customer{FirstName: "Nameless"})
	if err == nil {
		t.Fatal("expected error for customer with no email or phone")
	}
	if !apperr.Is(err, apperr.KindResolution) {
		t.Fatalf("expected resolution error, got %v", err)
	}
}
