package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"bookingsync/platform/apperr"
	"bookingsync/platform/logger"
)

type memoryStore struct {
	cred    *Credential
	saveErr error
}

func (s *memoryStore) Load(ctx context.Context) (*Credential, error) {
	return s.cred, nil
}

func (s *memoryStore) Save(ctx context.Context, cred Credential) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.cred = &cred
	return nil
}

type stubIssuer struct {
	token string
	err   error
	calls int
}

func (i *stubIssuer) NewToken(ctx context.Context, apiKey string) (string, error) {
	i.calls++
	if i.err != nil {
		return "", i.err
	}
	return i.token, nil
}

func testLogger() *logger.Logger {
	return logger.New("development", "error")
}

func TestTokenIssuesWhenNoneStored(t *testing.T) {
	store := &memoryStore{}
	issuer := &stubIssuer{token: "fresh"}
	m := NewManager(store, issuer, "key", "", true, testLogger())

	token, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "fresh" {
		t.Fatalf("expected fresh token, got %s", token)
	}
	if issuer.calls != 1 {
		t.Fatalf("expected one issuance, got %d", issuer.calls)
	}
	if store.cred == nil || store.cred.Token != "fresh" {
		t.Fatal("expected issued token to be persisted")
	}
}

func TestTokenReusesRecentToken(t *testing.T) {
	store := &memoryStore{cred: &Credential{Token: "recent", IssuedAt: time.Now().Add(-time.Hour)}}
	issuer := &stubIssuer{token: "unwanted"}
	m := NewManager(store, issuer, "key", "", true, testLogger())

	token, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "recent" {
		t.Fatalf("expected stored token, got %s", token)
	}
	if issuer.calls != 0 {
		t.Fatalf("expected no issuance, got %d", issuer.calls)
	}
}

func TestTokenRefreshesStaleToken(t *testing.T) {
	store := &memoryStore{cred: &Credential{Token: "old", IssuedAt: time.Now().Add(-12 * time.Hour)}}
	issuer := &stubIssuer{token: "new"}
	m := NewManager(store, issuer, "key", "", true, testLogger())

	token, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "new" {
		t.Fatalf("expected refreshed token, got %s", token)
	}
	if issuer.calls != 1 {
		t.Fatalf("expected one issuance, got %d", issuer.calls)
	}
}

func TestTokenKeepsStaleTokenWhenAutoRefreshDisabled(t *testing.T) {
	store := &memoryStore{cred: &Credential{Token: "old", IssuedAt: time.Now().Add(-48 * time.Hour)}}
	issuer := &stubIssuer{token: "unwanted"}
	m := NewManager(store, issuer, "key", "", false, testLogger())

	token, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "old" {
		t.Fatalf("expected stale token to be kept, got %s", token)
	}
	if issuer.calls != 0 {
		t.Fatalf("expected no issuance, got %d", issuer.calls)
	}
}

func TestTokenFallsBackToStaleTokenWhenRefreshFails(t *testing.T) {
	store := &memoryStore{cred: &Credential{Token: "old", IssuedAt: time.Now().Add(-12 * time.Hour)}}
	issuer := &stubIssuer{err: errors.New("crm down")}
	m := NewManager(store, issuer, "key", "", true, testLogger())

	token, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("expected stale-token fallback, got error: %v", err)
	}
	if token != "old" {
		t.Fatalf("expected stale token, got %s", token)
	}
}

func TestSeedTokenCountsAsStale(t *testing.T) {
	store := &memoryStore{}
	issuer := &stubIssuer{token: "replacement"}
	m := NewManager(store, issuer, "key", "seeded", true, testLogger())

	token, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "replacement" {
		t.Fatalf("expected seed token to be replaced, got %s", token)
	}
}

func TestSeedTokenServedWhenAutoRefreshDisabled(t *testing.T) {
	store := &memoryStore{}
	issuer := &stubIssuer{token: "unwanted"}
	m := NewManager(store, issuer, "key", "seeded", false, testLogger())

	token, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "seeded" {
		t.Fatalf("expected seed token, got %s", token)
	}
}

func TestRefreshForcesNewIssuance(t *testing.T) {
	store := &memoryStore{cred: &Credential{Token: "recent", IssuedAt: time.Now()}}
	issuer := &stubIssuer{token: "forced"}
	m := NewManager(store, issuer, "key", "", true, testLogger())

	token, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "forced" {
		t.Fatalf("expected forced token, got %s", token)
	}
	if issuer.calls != 1 {
		t.Fatalf("expected one issuance, got %d", issuer.calls)
	}
}

func TestTokenFailsWithoutAPIKey(t *testing.T) {
	m := NewManager(&memoryStore{}, &stubIssuer{token: "x"}, "", "", true, testLogger())

	_, err := m.Token(context.Background())
	if err == nil {
		t.Fatal("expected error when api key is missing and no token stored")
	}
	if !apperr.Is(err, apperr.KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestExpiryDerivesFromIssuedAt(t *testing.T) {
	issued := time.Now().Add(-time.Hour)
	store := &memoryStore{cred: &Credential{Token: "tok", IssuedAt: issued}}
	m := NewManager(store, &stubIssuer{}, "key", "", true, testLogger())

	expiry, err := m.Expiry(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !expiry.Equal(issued.Add(24 * time.Hour)) {
		t.Fatalf("expected expiry 24h after issuance, got %v", expiry)
	}
}
