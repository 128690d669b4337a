package callback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kinads-controlplane/pkg/config"
	"kinads-controlplane/services/registry"
	"kinads-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const (
	appUserSignature = "840a10bda8df0666d5f0da54750d23a5"
	userSignature    = "6d19a5d0cf1d78b97571d85f64b6675e"
	forwardSignature = "1aced430ed68570232bb546e84d0aecaebe9eec6b789ac99f3989e3d1f166454"
)

var (
	fixedNow = time.Unix(1586582640, 0)
	cest     = time.FixedZone("CEST", 2*60*60)
)

type forwardRecorder struct {
	mu   sync.Mutex
	uris []string
	srv  *httptest.Server
}

func newForwardRecorder(t *testing.T) *forwardRecorder {
	t.Helper()
	rec := &forwardRecorder{}
	rec.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.uris = append(rec.uris, r.URL.RequestURI())
		rec.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rec.srv.Close)
	return rec
}

func (r *forwardRecorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.uris...)
}

type fixture struct {
	gateway *Gateway
	events  EventRepository
	forward *forwardRecorder
}

// forwarded returns the forward requests once background forwards are done.
func (f *fixture) forwarded() []string {
	_ = f.gateway.Wait(context.Background())
	return f.forward.calls()
}

func newFixture(t *testing.T, callbackURL string, withCallback bool) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &registry.App{}, &RewardEvent{})
	rec := newForwardRecorder(t)

	app := &registry.App{
		UserID:          "userId",
		DataIdx:         registry.CallbackDataIdx(IronSource, "clientId"),
		SignatureSecret: "secret",
	}
	if withCallback {
		app.CallbackURL = rec.srv.URL + callbackURL
	}
	testutil.Seed(t, db, app)

	networks, err := NewNetworks(map[string]config.Network{
		"ironsource": {PrivateKey: "supersecret"},
	})
	require.NoError(t, err)

	events := NewEventRepository(db)
	gateway := NewGateway(
		registry.NewCache(registry.NewRepository(db), time.Minute),
		events,
		WithNetworks(networks),
		WithLocation(cest),
		WithClock(func() time.Time { return fixedNow }),
		WithForwarder(NewForwarder(time.Second)),
	)

	return &fixture{gateway: gateway, events: events, forward: rec}
}

func ironSourceRequest(overrides map[string]string, ip string) Request {
	q := url.Values{}
	q.Set("country", "")
	q.Set("appKey", "clientId")
	q.Set("eventId", "eventId")
	q.Set("publisherSubId", "")
	q.Set("rewards", "10")
	q.Set("signature", appUserSignature)
	q.Set("timestamp", "202004110724")
	q.Set("userId", "appUserId")
	q.Set("custom_wallet", "abc123")
	for k, v := range overrides {
		q.Set(k, v)
	}
	return Request{Network: "ironsource", Query: q, ForwardedFor: ip}
}

func TestHandleSavesAndForwards(t *testing.T) {
	f := newFixture(t, "", true)

	resp := f.gateway.Handle(context.Background(), ironSourceRequest(nil, "79.125.5.179"))
	require.Equal(t, Response{StatusCode: http.StatusOK, Body: "eventId:OK"}, resp)

	event, err := f.events.Find(context.Background(), "userId", "appUserId#eventId")
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, "10", event.Rewards)
	require.Equal(t, "202004110724", event.Timestamp)
	require.Equal(t, "appUserId", event.AppUserID)
	require.Equal(t, "79.125.5.179", event.IPAddress)
	require.Equal(t, int64(1586669040), event.Expires)

	require.Equal(t, []string{
		"/?eventId=eventId&rewards=10&timestamp=202004110724&userId=appUserId&signature=" + forwardSignature + "&custom_wallet=abc123",
	}, f.forwarded())
}

func TestHandleKeepsCallbackQueryString(t *testing.T) {
	f := newFixture(t, "?a=b", true)

	resp := f.gateway.Handle(context.Background(), ironSourceRequest(nil, "79.125.5.179"))
	require.Equal(t, "eventId:OK", resp.Body)

	require.Equal(t, []string{
		"/?a=b&eventId=eventId&rewards=10&timestamp=202004110724&userId=appUserId&signature=" + forwardSignature + "&custom_wallet=abc123",
	}, f.forwarded())
}

func TestHandleWithoutCallbackURL(t *testing.T) {
	f := newFixture(t, "", false)

	outcome := f.gateway.Process(context.Background(), ironSourceRequest(nil, "79.125.5.179"))
	require.True(t, outcome.Accepted())

	event, err := f.events.Find(context.Background(), "userId", "appUserId#eventId")
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Empty(t, f.forwarded())
}

func TestProcessRejections(t *testing.T) {
	cases := []struct {
		name      string
		overrides map[string]string
		ip        string
		seed      *RewardEvent
		reason    Reason
		sentinel  error
		message   string
	}{
		{
			name:      "expired event",
			overrides: map[string]string{"timestamp": "202004100624", "userId": "userId", "signature": userSignature},
			ip:        "79.125.5.179",
			reason:    ReasonExpiredEvent,
			sentinel:  ErrExpiredEvent,
			message:   "expired event: 202004100624",
		},
		{
			name:      "already saved",
			overrides: map[string]string{"userId": "userId", "signature": userSignature},
			ip:        "79.125.5.179",
			seed:      &RewardEvent{UserID: "userId", EventID: "userId#eventId", Rewards: "1"},
			reason:    ReasonDuplicateEvent,
			sentinel:  ErrDuplicateEvent,
			message:   "Event already sent for event eventId with user userId",
		},
		{
			name:      "unknown client",
			overrides: map[string]string{"appKey": "otherClient", "userId": "userId", "signature": userSignature},
			ip:        "79.125.5.179",
			reason:    ReasonClientNotFound,
			sentinel:  ErrClientNotFound,
			message:   "Could not find client with ID: otherClient",
		},
		{
			name:      "wrong signature",
			overrides: map[string]string{"userId": "userId", "signature": "wrong"},
			ip:        "79.125.5.179",
			reason:    ReasonSignatureMismatch,
			sentinel:  ErrSignatureMismatch,
			message:   "Signature did not match for event eventId with user userId",
		},
		{
			name:      "source ip outside range",
			overrides: map[string]string{"userId": "userId", "signature": "wrong"},
			ip:        "1.2.3.4",
			reason:    ReasonSourceIPRejected,
			sentinel:  ErrSourceIPRejected,
			message:   "incorrect source ip: 1.2.3.4",
		},
		{
			name:      "bad timestamp",
			overrides: map[string]string{"timestamp": "yesterday"},
			ip:        "79.125.5.179",
			reason:    ReasonInvalidRequest,
			sentinel:  ErrInvalidRequest,
			message:   "invalid timestamp: yesterday",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, "", true)
			if tc.seed != nil {
				_, err := f.events.CreateIfAbsent(context.Background(), tc.seed)
				require.NoError(t, err)
			}

			req := ironSourceRequest(tc.overrides, tc.ip)
			outcome := f.gateway.Process(context.Background(), req)

			require.False(t, outcome.Accepted())
			require.Equal(t, tc.reason, outcome.Reason)
			require.ErrorIs(t, outcome.Err, tc.sentinel)
			require.EqualError(t, outcome.Err, tc.message)
			require.Empty(t, f.forwarded())

			resp := f.gateway.Handle(context.Background(), req)
			require.Equal(t, Response{StatusCode: http.StatusOK, Body: "eventId:OK"}, resp)

			if tc.seed == nil {
				event, err := f.events.Find(context.Background(), "userId", EventKey(req.Query.Get("userId"), "eventId"))
				require.NoError(t, err)
				require.Nil(t, event)
			}
		})
	}
}

func TestProcessUnknownNetwork(t *testing.T) {
	f := newFixture(t, "", true)

	req := ironSourceRequest(nil, "79.125.5.179")
	req.Network = "unity"

	outcome := f.gateway.Process(context.Background(), req)
	require.Equal(t, ReasonInvalidRequest, outcome.Reason)
	require.ErrorIs(t, outcome.Err, ErrUnknownNetwork)
	require.Equal(t, "eventId:OK", f.gateway.Handle(context.Background(), req).Body)
}

func TestRedeliveryForwardsOnce(t *testing.T) {
	f := newFixture(t, "", true)
	req := ironSourceRequest(nil, "79.125.5.179")

	first := f.gateway.Process(context.Background(), req)
	second := f.gateway.Process(context.Background(), req)

	require.True(t, first.Accepted())
	require.Equal(t, ReasonDuplicateEvent, second.Reason)
	require.Len(t, f.forwarded(), 1)
}

func TestConcurrentDeliveryForwardsOnce(t *testing.T) {
	f := newFixture(t, "", true)
	req := ironSourceRequest(nil, "79.125.5.179")

	const deliveries = 8
	outcomes := make(chan Outcome, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- f.gateway.Process(context.Background(), req)
		}()
	}
	wg.Wait()
	close(outcomes)

	accepted := 0
	for outcome := range outcomes {
		if outcome.Accepted() {
			accepted++
			continue
		}
		require.Equal(t, ReasonDuplicateEvent, outcome.Reason)
	}
	require.Equal(t, 1, accepted)
	require.Len(t, f.forwarded(), 1)
}

type eventRepoMock struct {
	findFn   func(ctx context.Context, userID, eventID string) (*RewardEvent, error)
	createFn func(ctx context.Context, event *RewardEvent) (bool, error)
}

func (m *eventRepoMock) Find(ctx context.Context, userID, eventID string) (*RewardEvent, error) {
	if m.findFn != nil {
		return m.findFn(ctx, userID, eventID)
	}
	return nil, nil
}

func (m *eventRepoMock) CreateIfAbsent(ctx context.Context, event *RewardEvent) (bool, error) {
	if m.createFn != nil {
		return m.createFn(ctx, event)
	}
	return true, nil
}

func (m *eventRepoMock) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type clientLookupMock struct {
	client *registry.ClientConfig
	err    error
}

func (m clientLookupMock) Get(context.Context, string, string) (*registry.ClientConfig, error) {
	return m.client, m.err
}

func newMockGateway(t *testing.T, lookup ClientLookup, events EventRepository) *Gateway {
	t.Helper()
	networks, err := NewNetworks(map[string]config.Network{"IRONSOURCE": {PrivateKey: "supersecret"}})
	require.NoError(t, err)
	return NewGateway(lookup, events,
		WithNetworks(networks),
		WithLocation(cest),
		WithClock(func() time.Time { return fixedNow }),
		WithForwarder(NewForwarder(time.Second)),
	)
}

func TestCommitRaceLostIsDuplicate(t *testing.T) {
	rec := newForwardRecorder(t)
	g := newMockGateway(t,
		clientLookupMock{client: &registry.ClientConfig{UserID: "userId", CallbackURL: rec.srv.URL, SignatureSecret: "secret"}},
		&eventRepoMock{createFn: func(context.Context, *RewardEvent) (bool, error) { return false, nil }},
	)

	outcome := g.Process(context.Background(), ironSourceRequest(nil, "79.125.5.179"))
	require.Equal(t, ReasonDuplicateEvent, outcome.Reason)
	require.NoError(t, g.Wait(context.Background()))
	require.Empty(t, rec.calls())
}

func TestStoreErrorsAreSwallowed(t *testing.T) {
	rec := newForwardRecorder(t)
	boom := errors.New("connection reset")

	cases := map[string]*Gateway{
		"client lookup": newMockGateway(t, clientLookupMock{err: boom}, &eventRepoMock{}),
		"event lookup": newMockGateway(t,
			clientLookupMock{client: &registry.ClientConfig{UserID: "userId"}},
			&eventRepoMock{findFn: func(context.Context, string, string) (*RewardEvent, error) { return nil, boom }}),
		"commit": newMockGateway(t,
			clientLookupMock{client: &registry.ClientConfig{UserID: "userId", CallbackURL: rec.srv.URL}},
			&eventRepoMock{createFn: func(context.Context, *RewardEvent) (bool, error) { return false, boom }}),
	}

	for name, g := range cases {
		t.Run(name, func(t *testing.T) {
			req := ironSourceRequest(nil, "79.125.5.179")
			outcome := g.Process(context.Background(), req)
			require.Equal(t, ReasonStoreError, outcome.Reason)
			require.ErrorIs(t, outcome.Err, boom)
			require.Equal(t, Response{StatusCode: http.StatusOK, Body: "eventId:OK"}, g.Handle(context.Background(), req))
			require.NoError(t, g.Wait(context.Background()))
		})
	}
	require.Empty(t, rec.calls())
}

func TestForwardFailureDoesNotChangeOutcome(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	g := newMockGateway(t,
		clientLookupMock{client: &registry.ClientConfig{UserID: "userId", CallbackURL: failing.URL, SignatureSecret: "secret"}},
		&eventRepoMock{},
	)

	before := promtest.ToFloat64(forwardTotal.WithLabelValues(IronSource, "error"))
	outcome := g.Process(context.Background(), ironSourceRequest(nil, "79.125.5.179"))
	require.True(t, outcome.Accepted())
	require.NoError(t, g.Wait(context.Background()))
	require.Equal(t, before+1, promtest.ToFloat64(forwardTotal.WithLabelValues(IronSource, "error")))
}

func TestForwardOutlivesRequest(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	g := newMockGateway(t,
		clientLookupMock{client: &registry.ClientConfig{UserID: "userId", CallbackURL: slow.URL, SignatureSecret: "secret"}},
		&eventRepoMock{},
	)

	before := promtest.ToFloat64(forwardTotal.WithLabelValues(IronSource, "ok"))
	ctx, cancel := context.WithCancel(context.Background())
	resp := g.Handle(ctx, ironSourceRequest(nil, "79.125.5.179"))
	require.Equal(t, "eventId:OK", resp.Body)
	cancel()

	close(release)
	require.NoError(t, g.Wait(context.Background()))
	require.Equal(t, before+1, promtest.ToFloat64(forwardTotal.WithLabelValues(IronSource, "ok")))
}

func TestPurgeExpired(t *testing.T) {
	f := newFixture(t, "", false)
	ctx := context.Background()

	_, err := f.events.CreateIfAbsent(ctx, &RewardEvent{UserID: "u", EventID: "old", Rewards: "1", Expires: fixedNow.Add(-time.Minute).Unix()})
	require.NoError(t, err)
	_, err = f.events.CreateIfAbsent(ctx, &RewardEvent{UserID: "u", EventID: "fresh", Rewards: "1", Expires: fixedNow.Add(time.Hour).Unix()})
	require.NoError(t, err)

	deleted, err := f.gateway.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	event, err := f.events.Find(ctx, "u", "fresh")
	require.NoError(t, err)
	require.NotNil(t, event)
}
