package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"bookingsync/internal/events"
	"bookingsync/internal/remonline"
	"bookingsync/platform/apperr"
	"bookingsync/platform/config"
	"bookingsync/platform/logger"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeStore struct {
	appointments  map[int64]*Appointment
	links         map[int64]*BookingLink
	customers     map[int64]*Customer
	services      map[int64]*ServiceInfo
	providers     map[int64]*Provider
	external      map[int64]string
	unsynced      []int64
	persistCalls  int
	corruptWrites bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		appointments: map[int64]*Appointment{},
		links:        map[int64]*BookingLink{},
		customers:    map[int64]*Customer{},
		services:     map[int64]*ServiceInfo{},
		providers:    map[int64]*Provider{},
		external:     map[int64]string{},
	}
}

func (s *fakeStore) Appointment(ctx context.Context, id int64) (*Appointment, error) {
	appt, ok := s.appointments[id]
	if !ok {
		return nil, apperr.Data(fmt.Sprintf("appointment %d not found", id))
	}
	copied := *appt
	copied.ExternalID = s.external[id]
	return &copied, nil
}

func (s *fakeStore) BookingLink(ctx context.Context, appointmentID int64) (*BookingLink, error) {
	link, ok := s.links[appointmentID]
	if !ok {
		return nil, apperr.Data(fmt.Sprintf("no booking link for appointment %d", appointmentID))
	}
	return link, nil
}

func (s *fakeStore) Customer(ctx context.Context, id int64) (*Customer, error) {
	customer, ok := s.customers[id]
	if !ok {
		return nil, apperr.Data(fmt.Sprintf("customer %d not found", id))
	}
	return customer, nil
}

func (s *fakeStore) Service(ctx context.Context, id int64) (*ServiceInfo, error) {
	service, ok := s.services[id]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("service %d not found", id))
	}
	return service, nil
}

func (s *fakeStore) Provider(ctx context.Context, id int64) (*Provider, error) {
	provider, ok := s.providers[id]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("provider %d not found", id))
	}
	return provider, nil
}

func (s *fakeStore) ExternalID(ctx context.Context, appointmentID int64) (string, error) {
	return s.external[appointmentID], nil
}

// PersistExternalID mirrors the repository's post-write verification.
// corruptWrites simulates a write that lands with the wrong value.
func (s *fakeStore) PersistExternalID(ctx context.Context, appointmentID int64, externalID string) error {
	s.persistCalls++
	if s.corruptWrites {
		s.external[appointmentID] = externalID + "-stale"
	} else {
		s.external[appointmentID] = externalID
	}
	if persisted := s.external[appointmentID]; persisted != externalID {
		return apperr.Persistence(fmt.Sprintf(
			"post-write verification failed for appointment %d: stored %q, expected %q",
			appointmentID, persisted, externalID))
	}
	return nil
}

func (s *fakeStore) UnsyncedAppointments(ctx context.Context, olderThan time.Time, limit int) ([]int64, error) {
	var out []int64
	for _, id := range s.unsynced {
		if s.external[id] == "" && len(out) < limit {
			out = append(out, id)
		}
	}
	return out, nil
}

type fakeCRM struct {
	pages             [][]remonline.Client
	createdClients    []remonline.NewClient
	nextClientID      int64
	createClientErr   error
	createdOrders     []remonline.NewOrder
	nextOrderID       int64
	unauthorizedToken string
	listCalls         int
}

func (c *fakeCRM) ListClients(ctx context.Context, token string, page int) ([]remonline.Client, error) {
	c.listCalls++
	if page-1 < len(c.pages) {
		return c.pages[page-1], nil
	}
	return nil, nil
}

func (c *fakeCRM) CreateClient(ctx context.Context, token string, client remonline.NewClient) (int64, error) {
	if c.createClientErr != nil {
		return 0, c.createClientErr
	}
	c.createdClients = append(c.createdClients, client)
	if c.nextClientID == 0 {
		c.nextClientID = 900
	}
	return c.nextClientID, nil
}

func (c *fakeCRM) CreateOrder(ctx context.Context, token string, order remonline.NewOrder) (int64, error) {
	if token == c.unauthorizedToken {
		return 0, &remonline.APIError{Endpoint: "/order/", Status: 401, Body: "token expired"}
	}
	c.createdOrders = append(c.createdOrders, order)
	if c.nextOrderID == 0 {
		c.nextOrderID = 5000
	}
	return c.nextOrderID, nil
}

type fakeTokens struct {
	current      string
	next         string
	refreshCalls int
}

func (t *fakeTokens) Token(ctx context.Context) (string, error) {
	return t.current, nil
}

func (t *fakeTokens) Refresh(ctx context.Context) (string, error) {
	t.refreshCalls++
	if t.next == "" {
		return "", errors.New("no refresh token configured")
	}
	t.current = t.next
	return t.current, nil
}

type fakeLocker struct {
	held     map[string]bool
	acquires int
	releases int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

func (l *fakeLocker) Acquire(ctx context.Context, key string) (bool, error) {
	l.acquires++
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, key string) error {
	l.releases++
	delete(l.held, key)
	return nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func testConfig() *config.Config {
	return &config.Config{
		Enabled:         true,
		SweepBatchSize:  10,
		SweepMinAge:     time.Minute,
		LockTTL:         5 * time.Minute,
		CRMBranchID:     134397,
		CRMOrderTypeID:  240552,
		CRMStatusID:     1642511,
		CRMManagerID:    268918,
		CRMAdCampaignID: 301120,
	}
}

func newTestService(store *fakeStore, crm *fakeCRM, locks Locker) (*Service, *fakeTokens) {
	log := logger.New("development", "error")
	cfg := testConfig()
	tokens := &fakeTokens{current: "tok", next: "tok2"}
	resolver := NewResolver(crm, tokens, log)
	orders := NewOrderCreator(crm, tokens, cfg, log)
	bus := events.NewInMemoryBus(log)
	return NewService(store, resolver, orders, locks, bus, cfg, log), tokens
}

func seedAppointment(store *fakeStore, id int64) {
	store.appointments[id] = &Appointment{
		ID:           id,
		CustomerID:   id * 10,
		ServiceID:    1,
		BookingStart: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		BookingEnd:   time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC),
		Status:       "pending",
		CreatedAt:    time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC),
	}
	store.links[id] = &BookingLink{ID: id, AppointmentID: id, CustomerID: id * 10, Status: "pending"}
	store.customers[id*10] = &Customer{ID: id * 10, FirstName: "Anna", LastName: "Koval", Email: "a@b.com", Phone: "0501112233"}
	store.services[1] = &ServiceInfo{ID: 1, Name: "Consultation", Duration: 90}
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestSyncCreatesClientAndOrderForNewCustomer(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 42)
	crm := &fakeCRM{nextClientID: 777, nextOrderID: 5001}
	service, _ := newTestService(store, crm, newFakeLocker())

	if err := service.SyncAppointment(context.Background(), 42); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if len(crm.createdClients) != 1 {
		t.Fatalf("expected one client created, got %d", len(crm.createdClients))
	}
	created := crm.createdClients[0]
	if created.CustomFields[remonline.CustomFieldClientTag] != remonline.ClientTagValue {
		t.Fatalf("expected prospective-client tag, got %v", created.CustomFields)
	}

	if len(crm.createdOrders) != 1 {
		t.Fatalf("expected one order created, got %d", len(crm.createdOrders))
	}
	order := crm.createdOrders[0]
	if order.ClientID != 777 {
		t.Fatalf("expected order for client 777, got %d", order.ClientID)
	}
	if order.BranchID != 134397 || order.OrderType != 240552 || order.Status != 1642511 {
		t.Fatalf("unexpected order identifiers: %+v", order)
	}
	if order.Duration != 90 {
		t.Fatalf("expected service duration 90, got %d", order.Duration)
	}
	if order.ScheduledFor != store.appointments[42].BookingStart.UnixMilli() {
		t.Fatalf("expected scheduled_for in epoch ms, got %d", order.ScheduledFor)
	}
	if order.CustomFields[remonline.CustomFieldAppointmentRef] != "42" {
		t.Fatalf("expected appointment reference 42, got %v", order.CustomFields)
	}
	if order.CustomFields[remonline.CustomFieldClientTag] != remonline.ClientTagValue {
		t.Fatalf("expected prospective-client tag on order, got %v", order.CustomFields)
	}
	if order.Malfunction != "Consultation - 2026-03-01 10:00" {
		t.Fatalf("unexpected order description %q", order.Malfunction)
	}

	if store.external[42] != "5001" {
		t.Fatalf("expected external id 5001 persisted, got %q", store.external[42])
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 42)
	crm := &fakeCRM{}
	service, _ := newTestService(store, crm, newFakeLocker())
	ctx := context.Background()

	if err := service.SyncAppointment(ctx, 42); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	if err := service.SyncAppointment(ctx, 42); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}

	if len(crm.createdOrders) != 1 {
		t.Fatalf("expected exactly one order, got %d", len(crm.createdOrders))
	}
	if store.persistCalls != 1 {
		t.Fatalf("expected exactly one persist, got %d", store.persistCalls)
	}
}

func TestSyncSkipsAlreadySyncedAppointment(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 7)
	store.external[7] = "existing-order"
	crm := &fakeCRM{}
	service, _ := newTestService(store, crm, newFakeLocker())

	if err := service.SyncAppointment(context.Background(), 7); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if len(crm.createdOrders) != 0 {
		t.Fatal("expected no order creation for synced appointment")
	}
	if crm.listCalls != 0 {
		t.Fatal("expected no client lookup for synced appointment")
	}
}

func TestSyncSkipsWhenLockHeld(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 42)
	crm := &fakeCRM{}
	locks := newFakeLocker()
	locks.held["42"] = true
	service, _ := newTestService(store, crm, locks)

	if err := service.SyncAppointment(context.Background(), 42); err != nil {
		t.Fatalf("expected held lock to be a silent skip, got %v", err)
	}
	if len(crm.createdOrders) != 0 {
		t.Fatal("expected no order creation while lock held")
	}
}

func TestSyncReleasesLockAfterRun(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 42)
	locks := newFakeLocker()
	service, _ := newTestService(store, &fakeCRM{}, locks)

	if err := service.SyncAppointment(context.Background(), 42); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if locks.held["42"] {
		t.Fatal("expected lock to be released")
	}
	if locks.releases != 1 {
		t.Fatalf("expected one release, got %d", locks.releases)
	}
}

func TestSyncFailsWithoutBookingLink(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 42)
	delete(store.links, 42)
	service, _ := newTestService(store, &fakeCRM{}, newFakeLocker())

	err := service.SyncAppointment(context.Background(), 42)
	if err == nil {
		t.Fatal("expected error for appointment without booking link")
	}
	if !apperr.Is(err, apperr.KindData) {
		t.Fatalf("expected data error, got %v", err)
	}
}

func TestSyncUsesDefaultDurationWhenServiceMissing(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 42)
	delete(store.services, 1)
	crm := &fakeCRM{}
	service, _ := newTestService(store, crm, newFakeLocker())

	if err := service.SyncAppointment(context.Background(), 42); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if len(crm.createdOrders) != 1 {
		t.Fatalf("expected one order, got %d", len(crm.createdOrders))
	}
	if crm.createdOrders[0].Duration != defaultDurationMinutes {
		t.Fatalf("expected default duration, got %d", crm.createdOrders[0].Duration)
	}
	if crm.createdOrders[0].Malfunction != "Service #1 - 2026-03-01 10:00" {
		t.Fatalf("expected placeholder service name in description, got %q", crm.createdOrders[0].Malfunction)
	}
}

func TestSyncIncludesProviderInOrderDescription(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 42)
	providerID := int64(3)
	store.appointments[42].ProviderID = &providerID
	store.providers[3] = &Provider{ID: 3, FirstName: "Olena", LastName: "Shevchenko"}
	crm := &fakeCRM{}
	service, _ := newTestService(store, crm, newFakeLocker())

	if err := service.SyncAppointment(context.Background(), 42); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if len(crm.createdOrders) != 1 {
		t.Fatalf("expected one order, got %d", len(crm.createdOrders))
	}
	if got := crm.createdOrders[0].Malfunction; got != "Consultation - Olena Shevchenko - 2026-03-01 10:00" {
		t.Fatalf("unexpected order description %q", got)
	}
}

func TestSyncToleratesMissingProviderRecord(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 42)
	providerID := int64(99)
	store.appointments[42].ProviderID = &providerID
	crm := &fakeCRM{}
	service, _ := newTestService(store, crm, newFakeLocker())

	if err := service.SyncAppointment(context.Background(), 42); err != nil {
		t.Fatalf("expected missing provider to degrade gracefully, got %v", err)
	}
	if len(crm.createdOrders) != 1 {
		t.Fatalf("expected one order, got %d", len(crm.createdOrders))
	}
	if got := crm.createdOrders[0].Malfunction; got != "Consultation - 2026-03-01 10:00" {
		t.Fatalf("expected description without provider, got %q", got)
	}
}

func TestSyncSurfacesPersistVerificationFailure(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 42)
	store.corruptWrites = true
	locks := newFakeLocker()
	service, _ := newTestService(store, &fakeCRM{}, locks)

	err := service.SyncAppointment(context.Background(), 42)
	if err == nil {
		t.Fatal("expected error when persisted external id does not read back")
	}
	if !apperr.Is(err, apperr.KindPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if locks.held["42"] {
		t.Fatal("expected lock released after persistence failure")
	}
}

func TestSyncRetriesOnceAfterUnauthorized(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 42)
	crm := &fakeCRM{unauthorizedToken: "tok"}
	service, tokens := newTestService(store, crm, newFakeLocker())

	if err := service.SyncAppointment(context.Background(), 42); err != nil {
		t.Fatalf("expected retry after refresh to succeed, got %v", err)
	}
	if tokens.refreshCalls != 1 {
		t.Fatalf("expected one token refresh, got %d", tokens.refreshCalls)
	}
	if len(crm.createdOrders) != 1 {
		t.Fatalf("expected one order after retry, got %d", len(crm.createdOrders))
	}
}

func TestSyncDisabledIntegrationIsNoop(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 42)
	crm := &fakeCRM{}
	locks := newFakeLocker()
	service, _ := newTestService(store, crm, locks)
	service.cfg = &config.Config{Enabled: false}

	if err := service.SyncAppointment(context.Background(), 42); err != nil {
		t.Fatalf("expected disabled integration to be a no-op, got %v", err)
	}
	if locks.acquires != 0 || len(crm.createdOrders) != 0 {
		t.Fatal("expected no work when integration disabled")
	}
}

func TestSweepSyncsBacklog(t *testing.T) {
	store := newFakeStore()
	for _, id := range []int64{11, 12, 13} {
		seedAppointment(store, id)
	}
	store.unsynced = []int64{13, 12, 11}
	crm := &fakeCRM{}
	service, _ := newTestService(store, crm, newFakeLocker())

	result, err := service.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.Scanned != 3 || result.Synced != 3 || result.Failed != 0 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}
	for _, id := range []int64{11, 12, 13} {
		if store.external[id] == "" {
			t.Fatalf("expected appointment %d to be synced", id)
		}
	}
}

func TestSweepContinuesPastFailures(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 11)
	seedAppointment(store, 12)
	delete(store.customers, 110)
	store.unsynced = []int64{11, 12}
	crm := &fakeCRM{}
	service, _ := newTestService(store, crm, newFakeLocker())

	result, err := service.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.Failed != 1 || result.Synced != 1 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}
	if store.external[12] == "" {
		t.Fatal("expected appointment 12 to be synced despite 11 failing")
	}
}

func TestBookingCreatedEventTriggersSync(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 42)
	crm := &fakeCRM{}
	service, _ := newTestService(store, crm, newFakeLocker())

	log := logger.New("development", "error")
	bus := events.NewInMemoryBus(log)
	service.RegisterHandlers(bus, nil)

	err := bus.PublishSync(context.Background(), events.BookingCreated{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: 42,
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if store.external[42] != strconv.FormatInt(crm.nextOrderID, 10) {
		t.Fatalf("expected external id persisted via event, got %q", store.external[42])
	}
}

type fakeEnqueuer struct {
	enqueued []int64
	err      error
}

func (e *fakeEnqueuer) EnqueueSyncAppointment(ctx context.Context, appointmentID int64) error {
	if e.err != nil {
		return e.err
	}
	e.enqueued = append(e.enqueued, appointmentID)
	return nil
}

func TestBookingCreatedEventEnqueuesBackgroundTask(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 42)
	crm := &fakeCRM{}
	service, _ := newTestService(store, crm, newFakeLocker())

	log := logger.New("development", "error")
	bus := events.NewInMemoryBus(log)
	queue := &fakeEnqueuer{}
	service.RegisterHandlers(bus, queue)

	err := bus.PublishSync(context.Background(), events.BookingCreated{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: 42,
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(queue.enqueued) != 1 || queue.enqueued[0] != 42 {
		t.Fatalf("expected appointment 42 enqueued, got %v", queue.enqueued)
	}
	if len(crm.createdOrders) != 0 {
		t.Fatal("expected no inline CRM calls when a queue is configured")
	}
}

func TestBookingCreatedEventSyncsInlineWhenEnqueueFails(t *testing.T) {
	store := newFakeStore()
	seedAppointment(store, 42)
	crm := &fakeCRM{}
	service, _ := newTestService(store, crm, newFakeLocker())

	log := logger.New("development", "error")
	bus := events.NewInMemoryBus(log)
	queue := &fakeEnqueuer{err: errors.New("redis down")}
	service.RegisterHandlers(bus, queue)

	err := bus.PublishSync(context.Background(), events.BookingCreated{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: 42,
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if store.external[42] == "" {
		t.Fatal("expected inline sync to run when enqueueing fails")
	}
}
