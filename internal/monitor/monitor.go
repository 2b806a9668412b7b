// Package monitor periodically checks the funding account so an operator
// hears about a drained funder before top-ups start failing.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tronfunder/internal/metrics"
	"tronfunder/internal/notify"
	"tronfunder/internal/tron"
)

type BalanceReader interface {
	ReadBalance(ctx context.Context, address string) (int64, error)
}

type Options struct {
	// Threshold is the balance below which the funder is reported as low.
	Threshold decimal.Decimal
	Timeout   time.Duration
	Notifier  notify.Notifier
	Metrics   *metrics.Registry
	Logger    logrus.FieldLogger
}

// Monitor runs the funder balance check on a cron schedule.
type Monitor struct {
	cron      *cron.Cron
	balances  BalanceReader
	address   string
	threshold decimal.Decimal
	timeout   time.Duration
	notifier  notify.Notifier
	metrics   *metrics.Registry
	log       logrus.FieldLogger

	mu  sync.Mutex
	low bool
}

func New(balances BalanceReader, address string, opts Options) *Monitor {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	log := opts.Logger.WithFields(logrus.Fields{"component": "monitor", "funder": address})
	cronLog := cron.PrintfLogger(log)
	return &Monitor{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		balances:  balances,
		address:   address,
		threshold: opts.Threshold,
		timeout:   opts.Timeout,
		notifier:  opts.Notifier,
		metrics:   opts.Metrics,
		log:       log,
	}
}

// Register schedules the check. Both standard cron specs and descriptors
// such as "@every 5m" are accepted.
func (m *Monitor) Register(schedule string) error {
	if _, err := m.cron.AddFunc(schedule, m.run); err != nil {
		return fmt.Errorf("register funder balance check %q: %w", schedule, err)
	}
	return nil
}

func (m *Monitor) Start() {
	m.cron.Start()
	m.log.Info("funder monitor started")
}

// Stop halts scheduling and waits for a running check to finish or ctx to end.
func (m *Monitor) Stop(ctx context.Context) {
	select {
	case <-m.cron.Stop().Done():
	case <-ctx.Done():
	}
	m.log.Info("funder monitor stopped")
}

func (m *Monitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if _, err := m.Check(ctx); err != nil {
		m.log.WithError(err).Warn("funder balance check failed")
	}
}

// Check reads the funder balance once and records it. A notification is sent
// when the balance first drops below the threshold and again after it has
// recovered and dropped once more.
func (m *Monitor) Check(ctx context.Context) (decimal.Decimal, error) {
	sun, err := m.balances.ReadBalance(ctx, m.address)
	if err != nil {
		return decimal.Zero, err
	}
	balance := tron.SunToTRX(sun)
	m.metrics.SetFunderBalance(balance.InexactFloat64())

	low := balance.LessThan(m.threshold)

	m.mu.Lock()
	wasLow := m.low
	m.low = low
	m.mu.Unlock()

	entry := m.log.WithField("balance_trx", balance.String())
	switch {
	case low && !wasLow:
		entry.Warn("funder balance below threshold")
		m.notifier.Notify(fmt.Sprintf("Funder balance low: %s TRX\nAddress: %s", balance.String(), m.address))
	case !low && wasLow:
		entry.Info("funder balance recovered")
	default:
		entry.Debug("funder balance checked")
	}
	return balance, nil
}
