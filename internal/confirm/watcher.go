// Package confirm watches a submitted approval transaction until the chain
// reports a successful receipt or a fixed window elapses.
package confirm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tronfunder/internal/apperr"
	"tronfunder/internal/notify"
)

const (
	DefaultPollInterval = 2500 * time.Millisecond
	DefaultWindow       = 120 * time.Second
)

// StatusReader reports whether a transaction has a successful receipt.
type StatusReader interface {
	TransactionSucceeded(ctx context.Context, txID string) (bool, error)
}

// Clock is the time source the watcher sleeps on.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Approval is the transaction being watched. All fields are required.
type Approval struct {
	Owner         string
	Spender       string
	Amount        string
	TransactionID string
}

func (a Approval) validate() error {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(a.Owner) == "" {
		missing = append(missing, "owner")
	}
	if strings.TrimSpace(a.Spender) == "" {
		missing = append(missing, "spender")
	}
	if strings.TrimSpace(a.Amount) == "" {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(a.TransactionID) == "" {
		missing = append(missing, "transactionId")
	}
	if len(missing) > 0 {
		return apperr.Validation("missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Status is the terminal result of a watch.
type Status int

const (
	StatusConfirmed Status = iota + 1
	StatusNotConfirmedInTime
)

func (s Status) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	case StatusNotConfirmedInTime:
		return "not_confirmed_in_time"
	default:
		return "unknown"
	}
}

// Outcome is produced once when a watch ends.
type Outcome struct {
	Status        Status
	TransactionID string
	Polls         int
	Elapsed       time.Duration
}

func (o Outcome) Confirmed() bool {
	return o.Status == StatusConfirmed
}

type state int

const (
	polling state = iota
	confirmed
	expired
)

type Options struct {
	PollInterval time.Duration
	Window       time.Duration
	Clock        Clock
	Logger       logrus.FieldLogger
}

// Watcher runs bounded confirmation loops. A single Watcher serves any number
// of concurrent watches; each keeps its own deadline.
type Watcher struct {
	status   StatusReader
	notifier notify.Notifier
	interval time.Duration
	window   time.Duration
	clock    Clock
	log      logrus.FieldLogger
}

func NewWatcher(status StatusReader, notifier notify.Notifier, opts Options) *Watcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Watcher{
		status:   status,
		notifier: notifier,
		interval: opts.PollInterval,
		window:   opts.Window,
		clock:    opts.Clock,
		log:      opts.Logger.WithField("component", "confirm"),
	}
}

// watch is the per-call loop state.
type watch struct {
	approval Approval
	started  time.Time
	deadline time.Time
	polls    int
}

// Await polls the transaction status until it succeeds or the window closes.
// Running out of time is reported as StatusNotConfirmedInTime, not as an
// error. Status query failures count as "not yet". The only error after
// validation is ctx ending before the watch does.
func (w *Watcher) Await(ctx context.Context, a Approval) (Outcome, error) {
	if err := a.validate(); err != nil {
		return Outcome{}, err
	}

	w.notifier.Notify(fmt.Sprintf("Approval submitted:\nOwner: %s\nSpender: %s\nAmount: %s\nTx: %s",
		a.Owner, a.Spender, a.Amount, a.TransactionID))

	now := w.clock.Now()
	wt := &watch{approval: a, started: now, deadline: now.Add(w.window)}

	st := w.step(ctx, wt)
	for st == polling {
		select {
		case <-ctx.Done():
			w.notifier.Notify(fmt.Sprintf("Error on-approve: %s", ctx.Err()))
			return w.outcome(wt, StatusNotConfirmedInTime), ctx.Err()
		case <-w.clock.After(w.interval):
		}
		st = w.step(ctx, wt)
	}

	if st == confirmed {
		w.notifier.Notify(fmt.Sprintf("Approval confirmed:\nOwner: %s\nSpender: %s\nAmount: %s\nTx: %s",
			a.Owner, a.Spender, a.Amount, a.TransactionID))
		return w.outcome(wt, StatusConfirmed), nil
	}

	w.notifier.Notify(fmt.Sprintf("Approval not confirmed in time:\nTx: %s", a.TransactionID))
	return w.outcome(wt, StatusNotConfirmedInTime), nil
}

// step moves a watch out of polling: it expires once the deadline has been
// reached, otherwise it issues exactly one status query.
func (w *Watcher) step(ctx context.Context, wt *watch) state {
	if !w.clock.Now().Before(wt.deadline) {
		return expired
	}
	wt.polls++
	ok, err := w.status.TransactionSucceeded(ctx, wt.approval.TransactionID)
	if err != nil {
		w.log.WithError(err).WithFields(logrus.Fields{
			"txid": wt.approval.TransactionID,
			"poll": wt.polls,
		}).Debug("status query failed")
		return polling
	}
	if ok {
		return confirmed
	}
	return polling
}

func (w *Watcher) outcome(wt *watch, s Status) Outcome {
	return Outcome{
		Status:        s,
		TransactionID: wt.approval.TransactionID,
		Polls:         wt.polls,
		Elapsed:       w.clock.Now().Sub(wt.started),
	}
}
