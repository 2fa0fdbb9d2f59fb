// Package credentials manages the Remonline bearer token: issuance from
// the permanent API key, persistence, and staleness-driven refresh.
package credentials

import (
	"context"
	"sync"
	"time"

	"bookingsync/platform/apperr"
	"bookingsync/platform/logger"
)

const (
	// tokenLifetime is how long Remonline honors an issued token.
	tokenLifetime = 24 * time.Hour
	// staleAfter is the proactive refresh threshold.
	staleAfter = 11 * time.Hour
)

// TokenIssuer issues fresh bearer tokens. Satisfied by *remonline.Client.
type TokenIssuer interface {
	NewToken(ctx context.Context, apiKey string) (string, error)
}

// Manager hands out a valid bearer token and refreshes it when stale.
// Refresh is idempotent from the CRM's perspective, so concurrent callers
// racing into a duplicate refresh is benign; the mutex only keeps the
// cached view consistent.
type Manager struct {
	store       Store
	issuer      TokenIssuer
	apiKey      string
	autoRefresh bool
	log         *logger.Logger

	mu     sync.Mutex
	cached *Credential
	now    func() time.Time
}

// NewManager creates a credential manager. seedToken, when non-empty,
// bootstraps the store with an operator-provided token of unknown age.
func NewManager(store Store, issuer TokenIssuer, apiKey, seedToken string, autoRefresh bool, log *logger.Logger) *Manager {
	m := &Manager{
		store:       store,
		issuer:      issuer,
		apiKey:      apiKey,
		autoRefresh: autoRefresh,
		log:         log,
		now:         time.Now,
	}
	if seedToken != "" {
		// Seed tokens carry no issuance time, so they count as stale
		// and get replaced on the first refresh opportunity.
		m.cached = &Credential{Token: seedToken}
	}
	return m
}

// Token returns a usable bearer token, refreshing first when none was
// ever issued or the stored one is older than the staleness threshold
// (and auto-refresh is enabled).
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.currentLocked(ctx)
	if err != nil {
		return "", err
	}

	if cred != nil && cred.Token != "" {
		if !m.autoRefresh || m.now().Sub(cred.IssuedAt) <= staleAfter {
			return cred.Token, nil
		}
	}

	refreshed, err := m.refreshLocked(ctx)
	if err != nil {
		// A stale token beats no token when refresh is down.
		if cred != nil && cred.Token != "" {
			m.log.Warn("token refresh failed, using stale token", "error", err)
			return cred.Token, nil
		}
		return "", err
	}
	return refreshed.Token, nil
}

// Refresh forces issuance of a new token regardless of the current one's
// age. Callers use it after a 401 before retrying the original request.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.refreshLocked(ctx)
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}

// Expiry returns when the current token stops being honored. The zero
// time means no token was ever issued.
func (m *Manager) Expiry(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.currentLocked(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if cred == nil || cred.IssuedAt.IsZero() {
		return time.Time{}, nil
	}
	return cred.IssuedAt.Add(tokenLifetime), nil
}

func (m *Manager) currentLocked(ctx context.Context) (*Credential, error) {
	if m.cached != nil {
		return m.cached, nil
	}
	cred, err := m.store.Load(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuth, "failed to load stored credential", err)
	}
	m.cached = cred
	return cred, nil
}

func (m *Manager) refreshLocked(ctx context.Context) (*Credential, error) {
	if m.apiKey == "" {
		return nil, apperr.Auth("remonline API key is not configured")
	}

	token, err := m.issuer.NewToken(ctx, m.apiKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuth, "token refresh failed", err)
	}

	cred := &Credential{Token: token, IssuedAt: m.now()}
	if err := m.store.Save(ctx, *cred); err != nil {
		return nil, apperr.Wrap(apperr.KindAuth, "failed to persist refreshed token", err)
	}
	m.cached = cred

	m.log.Info("remonline token refreshed")
	return cred, nil
}
