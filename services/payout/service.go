package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kinads-controlplane/services/exchange"
	"kinads-controlplane/services/revenue"
	"kinads-controlplane/services/wallet"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Aggregator yields each app's fee-adjusted revenue for a date.
type Aggregator interface {
	Aggregate(ctx context.Context, date string) ([]revenue.AppRevenue, error)
}

// Pricer is the part of the exchange oracle the executor relies on.
type Pricer interface {
	PriceForVolume(ctx context.Context, dollars decimal.Decimal) (decimal.Decimal, error)
	MarketBuy(ctx context.Context, dollars decimal.Decimal) (exchange.MarketBuyResult, error)
	RealizedPrice(ctx context.Context, orderID string) (decimal.Decimal, error)
}

type Settings struct {
	Production  bool
	DryRunPrice decimal.Decimal
	MemoPrefix  string
}

// Executor runs the daily revenue to KIN payout cycle.
type Executor struct {
	revenue Aggregator
	repo    Repository
	pricer  Pricer
	wallet  wallet.Wallet
	lock    Locker
	node    *snowflake.Node
	cfg     Settings
	tracer  trace.Tracer
}

type ExecutorParams struct {
	Revenue Aggregator
	Repo    Repository
	Pricer  Pricer
	Wallet  wallet.Wallet
	Lock    Locker
	Node    *snowflake.Node
	Config  Settings
}

func NewExecutor(p ExecutorParams) *Executor {
	cfg := p.Config
	if cfg.MemoPrefix == "" {
		cfg.MemoPrefix = "1-KAD1-"
	}
	if !cfg.DryRunPrice.IsPositive() {
		cfg.DryRunPrice = decimal.RequireFromString("0.01")
	}
	return &Executor{
		revenue: p.Revenue,
		repo:    p.Repo,
		pricer:  p.Pricer,
		wallet:  p.Wallet,
		lock:    p.Lock,
		node:    p.Node,
		cfg:     cfg,
		tracer:  otel.Tracer("kinads-controlplane/services/payout"),
	}
}

// Run pays every app its revenue for date (YYYYMMDD) in KIN. Apps already
// paid for date are skipped, so a rerun only pays what is still due.
func (e *Executor) Run(ctx context.Context, date string) (*Summary, error) {
	if _, err := time.Parse(revenue.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	ctx, span := e.tracer.Start(ctx, "payout.Run", trace.WithAttributes(
		attribute.String("date", date),
		attribute.Bool("production", e.cfg.Production),
	))
	defer span.End()

	cycle := &Cycle{
		ID:         e.node.Generate().String(),
		Date:       date,
		Status:     CycleRunning,
		Production: e.cfg.Production,
		StartedAt:  time.Now(),
	}

	if e.lock != nil {
		release, err := e.lock.Acquire(ctx, date, cycle.ID)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				zap.L().Warn("[Payout] failed to release cycle lock", zap.String("date", date), zap.Error(err))
			}
		}()
	}

	if err := e.repo.CreateCycle(ctx, cycle); err != nil {
		return nil, fmt.Errorf("create cycle record: %w", err)
	}

	zap.L().Info("[Payout] cycle started",
		zap.String("cycle_id", cycle.ID),
		zap.String("date", date),
		zap.Bool("production", e.cfg.Production))

	summary, err := e.run(ctx, date)
	if summary == nil {
		summary = &Summary{Date: date}
	}
	summary.CycleID = cycle.ID
	summary.Production = e.cfg.Production

	e.finish(ctx, cycle, summary, err)
	if err != nil {
		span.RecordError(err)
		return summary, err
	}
	return summary, nil
}

func (e *Executor) run(ctx context.Context, date string) (*Summary, error) {
	apps, err := e.revenue.Aggregate(ctx, date)
	if err != nil {
		return nil, err
	}

	paid, err := e.repo.PaidUsers(ctx, date)
	if err != nil {
		return nil, err
	}
	due, done := splitPaid(apps, paid)

	summary := &Summary{Date: date, Total: revenue.Total(due), Entries: done}
	if len(due) == 0 {
		zap.L().Info("[Payout] nothing due", zap.String("date", date), zap.Int("already_paid", len(done)))
		return summary, nil
	}

	price, reserve, err := e.price(ctx, summary.Total)
	if err != nil {
		return summary, err
	}
	summary.KinPrice = price
	summary.Reserve = reserve

	entries, err := e.submit(ctx, date, price, Plan(due, price))
	summary.Entries = append(summary.Entries, entries...)
	return summary, err
}

// splitPaid separates the apps still due from those already paid for the
// date.
func splitPaid(apps []revenue.AppRevenue, paid map[string]bool) ([]revenue.AppRevenue, []Entry) {
	due := make([]revenue.AppRevenue, 0, len(apps))
	var done []Entry
	for _, app := range apps {
		if paid[app.UserID] {
			done = append(done, Entry{
				UserID:  app.UserID,
				AppID:   app.AppID,
				Wallet:  app.Wallet,
				Revenue: app.Revenue,
				Status:  EntryAlreadyPaid,
			})
			continue
		}
		due = append(due, app)
	}
	return due, done
}

// price returns the KIN price for paying out total dollars and the reserve
// after this cycle. The reserve is written only once a price is known.
func (e *Executor) price(ctx context.Context, total decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	reserve, err := e.repo.Reserve(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	if !e.cfg.Production {
		zap.L().Info("[Payout] dry run price", zap.String("price", e.cfg.DryRunPrice.String()))
		return e.cfg.DryRunPrice, reserve, nil
	}

	var price, next decimal.Decimal
	if reserve.LessThan(total) {
		order, err := e.pricer.MarketBuy(ctx, total)
		if err != nil {
			return decimal.Zero, reserve, fmt.Errorf("market buy: %w", err)
		}
		price, err = e.pricer.RealizedPrice(ctx, order.OrderID)
		if err != nil {
			zap.L().Error("[Payout] market buy placed but price unknown",
				zap.String("order_id", order.OrderID),
				zap.String("amount", order.Amount.String()),
				zap.Error(err))
			return decimal.Zero, reserve, fmt.Errorf("realized price of %s: %w", order.OrderID, err)
		}
		next = reserve.Add(order.Amount).Sub(total)
	} else {
		price, err = e.pricer.PriceForVolume(ctx, total)
		if err != nil {
			return decimal.Zero, reserve, fmt.Errorf("order book price: %w", err)
		}
		next = reserve.Sub(total)
	}

	if !price.IsPositive() {
		return decimal.Zero, reserve, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}

	if err := e.repo.SetReserve(ctx, next); err != nil {
		return decimal.Zero, reserve, err
	}
	reserveGauge.Set(next.InexactFloat64())

	zap.L().Info("[Payout] priced cycle",
		zap.String("total", total.String()),
		zap.String("price", price.String()),
		zap.String("reserve_before", reserve.String()),
		zap.String("reserve_after", next.String()))

	return price, next, nil
}

// Plan converts each app's revenue into whole KIN at price.
func Plan(apps []revenue.AppRevenue, price decimal.Decimal) []Entry {
	entries := make([]Entry, 0, len(apps))
	for _, app := range apps {
		entries = append(entries, Entry{
			UserID:  app.UserID,
			AppID:   app.AppID,
			Wallet:  app.Wallet,
			Revenue: app.Revenue,
			Kin:     app.Revenue.Div(price).Floor(),
		})
	}
	return entries
}

// submit pays the planned entries one by one. A failed transfer only fails
// its own entry; store errors abort the remaining entries.
func (e *Executor) submit(ctx context.Context, date string, price decimal.Decimal, plan []Entry) ([]Entry, error) {
	for i := range plan {
		entry := &plan[i]

		switch {
		case entry.AppID == "" || entry.Wallet == "":
			entry.Status = EntryNoWallet
		case !entry.Kin.IsPositive():
			entry.Status = EntryNothingDue
		}
		if entry.Status != "" {
			e.record(date, entry)
			continue
		}

		existing, err := e.repo.FindPayout(ctx, entry.UserID, date)
		if err != nil {
			return plan[:i], err
		}
		if existing != nil {
			entry.Status = EntryAlreadyPaid
			entry.TxID = existing.TxID
			e.record(date, entry)
			continue
		}

		if !e.cfg.Production {
			entry.TxID = e.node.Generate().String()
			entry.Status = EntryDryRun
			e.record(date, entry)
			continue
		}

		txID, err := e.wallet.Submit(ctx, wallet.Transfer{
			Destination: entry.Wallet,
			Memo:        e.cfg.MemoPrefix + entry.AppID,
			Amount:      entry.Kin,
		})
		if err != nil {
			entry.Status = EntryFailed
			entry.Error = err.Error()
			e.record(date, entry)
			continue
		}
		entry.TxID = txID

		if err := e.repo.SavePayout(ctx, &PayoutRecord{
			UserID:   entry.UserID,
			Date:     date,
			TxID:     txID,
			Kin:      entry.Kin,
			Revenue:  entry.Revenue,
			KinPrice: price,
		}); err != nil {
			entry.Status = EntryFailed
			entry.Error = err.Error()
			e.record(date, entry)
			return plan[:i+1], fmt.Errorf("%w: tx %s: %v", ErrRecordNotSaved, txID, err)
		}

		entry.Status = EntryPaid
		e.record(date, entry)
	}
	return plan, nil
}

func (e *Executor) record(date string, entry *Entry) {
	transferTotal.WithLabelValues(string(entry.Status)).Inc()

	fields := []zap.Field{
		zap.String("date", date),
		zap.String("user_id", entry.UserID),
		zap.String("app_id", entry.AppID),
		zap.String("wallet", entry.Wallet),
		zap.String("revenue", entry.Revenue.String()),
		zap.String("kin", entry.Kin.String()),
		zap.String("tx_id", entry.TxID),
		zap.String("status", string(entry.Status)),
	}
	switch entry.Status {
	case EntryFailed:
		zap.L().Error("[Payout] transfer failed", append(fields, zap.String("error", entry.Error))...)
	case EntryPaid, EntryDryRun:
		zap.L().Info("[Payout] transfer done", fields...)
	default:
		zap.L().Info("[Payout] transfer skipped", fields...)
	}
}

func (e *Executor) finish(ctx context.Context, cycle *Cycle, summary *Summary, runErr error) {
	cycle.Status = CycleSuccess
	if runErr != nil {
		cycle.Status = CycleFailed
		cycle.Error = runErr.Error()
	}
	cycle.Apps = len(summary.Entries)
	cycle.Paid = summary.Paid()
	cycle.Skipped = summary.Skipped()
	cycle.Failed = summary.Failed()
	cycle.Total = summary.Total
	cycle.KinPrice = summary.KinPrice

	if err := e.repo.FinishCycle(context.WithoutCancel(ctx), cycle); err != nil {
		zap.L().Error("[Payout] failed to update cycle record", zap.String("cycle_id", cycle.ID), zap.Error(err))
	}

	cycleTotal.WithLabelValues(string(cycle.Status)).Inc()
	cycleDuration.Observe(time.Since(cycle.StartedAt).Seconds())

	fields := []zap.Field{
		zap.String("cycle_id", cycle.ID),
		zap.String("date", cycle.Date),
		zap.Int("paid", cycle.Paid),
		zap.Int("skipped", cycle.Skipped),
		zap.Int("failed", cycle.Failed),
		zap.String("total", cycle.Total.String()),
		zap.String("kin_price", cycle.KinPrice.String()),
	}
	if runErr != nil {
		zap.L().Error("[Payout] cycle failed", append(fields, zap.Error(runErr))...)
		return
	}
	zap.L().Info("[Payout] cycle finished", fields...)
}

// WalletStatus returns the hot wallet balance and address.
func (e *Executor) WalletStatus(ctx context.Context) (wallet.Status, error) {
	return e.wallet.Balance(ctx)
}

// Reserve returns the current dollar reserve.
func (e *Executor) Reserve(ctx context.Context) (decimal.Decimal, error) {
	return e.repo.Reserve(ctx)
}

// IsCycleInProgress reports whether err means another worker holds the
// cycle lock.
func IsCycleInProgress(err error) bool {
	return errors.Is(err, ErrCycleInProgress)
}
