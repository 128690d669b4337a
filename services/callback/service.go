package callback

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"kinads-controlplane/services/registry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const timestampLayout = "200601021504"

// ClientLookup resolves the callback configuration of a client.
type ClientLookup interface {
	Get(ctx context.Context, network, clientID string) (*registry.ClientConfig, error)
}

// Gateway verifies reward callbacks, records them once and forwards them to
// the owning application.
type Gateway struct {
	clients   ClientLookup
	events    EventRepository
	networks  map[string]*Network
	forwarder *Forwarder
	location  *time.Location
	maxAge    time.Duration
	eventTTL  time.Duration
	now       func() time.Time
	tracer    trace.Tracer
	forwards  sync.WaitGroup
}

type Option func(*Gateway)

// WithClock sets the function used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithLocation sets the zone the network timestamps are expressed in.
func WithLocation(loc *time.Location) Option {
	return func(g *Gateway) { g.location = loc }
}

func WithNetworks(networks map[string]*Network) Option {
	return func(g *Gateway) { g.networks = networks }
}

func WithForwarder(f *Forwarder) Option {
	return func(g *Gateway) { g.forwarder = f }
}

// WithMaxAge bounds how old a callback timestamp may be.
func WithMaxAge(d time.Duration) Option {
	return func(g *Gateway) { g.maxAge = d }
}

// WithEventTTL sets how long ledger entries are kept after their timestamp.
func WithEventTTL(d time.Duration) Option {
	return func(g *Gateway) { g.eventTTL = d }
}

func NewGateway(clients ClientLookup, events EventRepository, opts ...Option) *Gateway {
	g := &Gateway{
		clients:   clients,
		events:    events,
		networks:  map[string]*Network{IronSource: ironSource()},
		forwarder: NewForwarder(0),
		location:  time.UTC,
		maxAge:    24 * time.Hour,
		eventTTL:  24 * time.Hour,
		now:       time.Now,
		tracer:    otel.Tracer("kinads-controlplane/services/callback"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handle processes the callback and always answers 200 "<eventId>:OK" so the
// network's retry policy never depends on our internal state.
func (g *Gateway) Handle(ctx context.Context, req Request) Response {
	outcome := g.Process(ctx, req)

	eventID := outcome.Callback.EventID
	if eventID == "" && req.Query != nil {
		eventID = req.Query.Get("eventId")
	}

	return Response{StatusCode: http.StatusOK, Body: eventID + ":OK"}
}

// Process verifies and commits the callback and returns the decision taken.
// The forward to the application runs in the background, bounded by the
// forwarder's timeout and independent of the caller's context.
func (g *Gateway) Process(ctx context.Context, req Request) Outcome {
	ctx, span := g.tracer.Start(ctx, "callback.Process",
		trace.WithAttributes(attribute.String("network", strings.ToUpper(req.Network))))
	defer span.End()

	outcome := g.Verify(ctx, req)
	if outcome.Accepted() {
		outcome = g.commit(ctx, outcome)
	}
	if outcome.Accepted() && outcome.Client.CallbackURL != "" {
		fwdCtx := context.WithoutCancel(ctx)
		g.forwards.Add(1)
		go func() {
			defer g.forwards.Done()
			g.forward(fwdCtx, outcome)
		}()
	}

	span.SetAttributes(attribute.String("outcome", string(outcome.Reason)))
	g.observe(outcome)
	return outcome
}

// Verify decides whether the callback is authentic, fresh and new. It reads
// the store but never writes to it.
func (g *Gateway) Verify(ctx context.Context, req Request) Outcome {
	network, ok := g.networks[strings.ToUpper(req.Network)]
	if !ok {
		return reject(Callback{Network: req.Network}, ReasonInvalidRequest, ErrUnknownNetwork,
			"unknown network: %s", req.Network)
	}

	cb := network.Parse(req)
	if cb.EventID == "" || cb.AppKey == "" || cb.UserID == "" {
		return reject(cb, ReasonInvalidRequest, ErrInvalidRequest,
			"missing callback parameters for event %s", cb.EventID)
	}

	ts, err := time.ParseInLocation(timestampLayout, cb.Timestamp, g.location)
	if err != nil {
		return reject(cb, ReasonInvalidRequest, ErrInvalidRequest, "invalid timestamp: %s", cb.Timestamp)
	}
	if g.now().Sub(ts) > g.maxAge {
		return reject(cb, ReasonExpiredEvent, ErrExpiredEvent, "expired event: %s", cb.Timestamp)
	}

	if !network.AllowsIP(cb.SourceIP) {
		return reject(cb, ReasonSourceIPRejected, ErrSourceIPRejected, "incorrect source ip: %s", cb.SourceIP)
	}

	client, err := g.clients.Get(ctx, network.Name, cb.AppKey)
	if errors.Is(err, registry.ErrClientNotFound) {
		return reject(cb, ReasonClientNotFound, ErrClientNotFound, "Could not find client with ID: %s", cb.AppKey)
	}
	if err != nil {
		return reject(cb, ReasonStoreError, err, "client lookup failed: %v", err)
	}

	key := EventKey(cb.UserID, cb.EventID)
	existing, err := g.events.Find(ctx, client.UserID, key)
	if err != nil {
		return reject(cb, ReasonStoreError, err, "event lookup failed: %v", err)
	}
	if existing != nil && existing.Rewards != "" {
		return reject(cb, ReasonDuplicateEvent, ErrDuplicateEvent,
			"Event already sent for event %s with user %s", cb.EventID, cb.UserID)
	}

	privateKey := client.NetworkSecret
	if privateKey == "" {
		privateKey = network.PrivateKey
	}
	if !network.VerifySignature(cb, privateKey) {
		return reject(cb, ReasonSignatureMismatch, ErrSignatureMismatch,
			"Signature did not match for event %s with user %s", cb.EventID, cb.UserID)
	}

	return Outcome{
		Callback: cb,
		Client:   client,
		Event: &RewardEvent{
			UserID:    client.UserID,
			EventID:   key,
			Rewards:   cb.Rewards,
			Timestamp: cb.Timestamp,
			AppUserID: cb.UserID,
			IPAddress: cb.SourceIP,
			Expires:   ts.Add(g.eventTTL).Unix(),
		},
	}
}

// commit writes the ledger entry. Losing the insert race to a concurrent
// delivery of the same event turns the outcome into a duplicate.
func (g *Gateway) commit(ctx context.Context, outcome Outcome) Outcome {
	created, err := g.events.CreateIfAbsent(ctx, outcome.Event)
	if err != nil {
		return reject(outcome.Callback, ReasonStoreError, err, "event commit failed: %v", err)
	}
	if !created {
		return reject(outcome.Callback, ReasonDuplicateEvent, ErrDuplicateEvent,
			"Event already sent for event %s with user %s", outcome.Callback.EventID, outcome.Callback.UserID)
	}
	return outcome
}

func (g *Gateway) forward(ctx context.Context, outcome Outcome) {
	target, err := BuildURL(outcome.Client, outcome.Callback)
	if err != nil {
		forwardTotal.WithLabelValues(outcome.Callback.Network, "error").Inc()
		zap.L().Error("failed to build forward url",
			zap.String("event_id", outcome.Callback.EventID),
			zap.String("client_id", outcome.Callback.AppKey),
			zap.Error(err))
		return
	}

	if err := g.forwarder.Forward(ctx, target); err != nil {
		forwardTotal.WithLabelValues(outcome.Callback.Network, "error").Inc()
		zap.L().Warn("forward callback failed",
			zap.String("event_id", outcome.Callback.EventID),
			zap.String("client_id", outcome.Callback.AppKey),
			zap.Error(err))
		return
	}
	forwardTotal.WithLabelValues(outcome.Callback.Network, "ok").Inc()
}

func (g *Gateway) observe(outcome Outcome) {
	reason := string(outcome.Reason)
	if outcome.Accepted() {
		reason = "accepted"
	}
	outcomeTotal.WithLabelValues(outcome.Callback.Network, reason).Inc()

	fields := []zap.Field{
		zap.String("network", outcome.Callback.Network),
		zap.String("event_id", outcome.Callback.EventID),
		zap.String("client_id", outcome.Callback.AppKey),
	}
	switch {
	case outcome.Accepted():
		zap.L().Info("callback accepted", fields...)
	case outcome.Reason == ReasonStoreError:
		zap.L().Error("callback failed", append(fields, zap.Error(outcome.Err))...)
	default:
		zap.L().Warn("callback rejected", append(fields, zap.String("reason", reason), zap.Error(outcome.Err))...)
	}
}

// Wait blocks until background forwards finish or ctx is done.
func (g *Gateway) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.forwards.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PurgeExpired deletes ledger entries whose expiry has passed.
func (g *Gateway) PurgeExpired(ctx context.Context) (int64, error) {
	return g.events.DeleteExpired(ctx, g.now())
}
