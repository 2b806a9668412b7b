// Package funding decides whether a wallet needs a sponsored top-up and
// submits at most one transfer per evaluation.
package funding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tronfunder/internal/apperr"
	"tronfunder/internal/notify"
	"tronfunder/internal/tron"
)

// BalanceReader reads the native balance of an address in sun.
type BalanceReader interface {
	ReadBalance(ctx context.Context, address string) (int64, error)
}

// Transferer submits one native transfer and returns its transaction id,
// which may be empty if the chain did not report one.
type Transferer interface {
	SubmitTransfer(ctx context.Context, to string, amountSun int64) (string, error)
}

// Policy holds the thresholds an evaluation is judged against.
type Policy struct {
	MinBalance  decimal.Decimal
	TopupAmount decimal.Decimal
}

// DecisionKind is the outcome of comparing a balance against the policy.
type DecisionKind int

const (
	Skip DecisionKind = iota
	Submit
)

func (k DecisionKind) String() string {
	if k == Submit {
		return "submit"
	}
	return "skip"
}

// Decision is produced once per evaluation and never revisited.
type Decision struct {
	Kind    DecisionKind
	Balance decimal.Decimal
	// Amount is set only for Submit.
	Amount decimal.Decimal
}

// Decide applies the policy to an observed balance.
func Decide(balance decimal.Decimal, p Policy) Decision {
	if balance.GreaterThanOrEqual(p.MinBalance) {
		return Decision{Kind: Skip, Balance: balance}
	}
	return Decision{Kind: Submit, Balance: balance, Amount: p.TopupAmount}
}

// Receipt describes a submitted top-up.
type Receipt struct {
	TransactionID string
	Recipient     string
	Amount        decimal.Decimal
	AmountSun     int64
	SubmittedAt   time.Time
}

// Result is returned to the caller of Evaluate.
type Result struct {
	Address  string
	Balance  decimal.Decimal
	Decision Decision
	Receipt  *Receipt
}

// TopupTransactionID returns the top-up transaction id, or nil when no
// transfer was made or the chain did not report an id.
func (r *Result) TopupTransactionID() *string {
	if r == nil || r.Receipt == nil || r.Receipt.TransactionID == "" {
		return nil
	}
	id := r.Receipt.TransactionID
	return &id
}

// Engine evaluates funding requests. A nil funder means top-ups are disabled;
// any evaluation that would need one fails with a configuration error.
type Engine struct {
	balances     BalanceReader
	funder       Transferer
	notifier     notify.Notifier
	policy       Policy
	validAddress func(string) bool
	now          func() time.Time
}

type Option func(*Engine)

// WithAddressCheck rejects addresses for which valid returns false before
// anything is read or notified.
func WithAddressCheck(valid func(string) bool) Option {
	return func(e *Engine) { e.validAddress = valid }
}

func NewEngine(balances BalanceReader, funder Transferer, notifier notify.Notifier, policy Policy, opts ...Option) *Engine {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	e := &Engine{
		balances: balances,
		funder:   funder,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate reads the balance of address once and tops it up when it is below
// the policy minimum. Validation errors are returned silently; every other
// failure is reported through the notifier before being returned.
func (e *Engine) Evaluate(ctx context.Context, address string) (*Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, apperr.Validation("address required")
	}
	if e.validAddress != nil && !e.validAddress(address) {
		return nil, apperr.Validation("invalid address %q", address)
	}

	res, err := e.evaluate(ctx, address)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindValidation {
			e.notifier.Notify(fmt.Sprintf("Error on-connect: %s", err.Error()))
		}
		return nil, err
	}
	return res, nil
}

func (e *Engine) evaluate(ctx context.Context, address string) (*Result, error) {
	e.notifier.Notify(fmt.Sprintf("Wallet connected: %s", address))

	sun, err := e.balances.ReadBalance(ctx, address)
	if err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.Upstream(err, "read balance of %s", address)
		}
		return nil, err
	}
	balance := tron.SunToTRX(sun)

	decision := Decide(balance, e.policy)
	res := &Result{Address: address, Balance: balance, Decision: decision}

	if decision.Kind == Skip {
		e.notifier.Notify(fmt.Sprintf("No top-up needed. Balance: %s TRX", balance.String()))
		return res, nil
	}

	if e.funder == nil {
		return nil, apperr.Configuration("funder not configured")
	}

	amountSun := tron.TRXToSun(decision.Amount)
	txID, err := e.funder.SubmitTransfer(ctx, address, amountSun)
	if err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.Upstream(err, "submit top-up to %s", address)
		}
		return nil, err
	}

	res.Receipt = &Receipt{
		TransactionID: txID,
		Recipient:     address,
		Amount:        decision.Amount,
		AmountSun:     amountSun,
		SubmittedAt:   e.now(),
	}

	shown := txID
	if shown == "" {
		shown = "pending"
	}
	e.notifier.Notify(fmt.Sprintf("Top-up sent: %s TRX to %s\nTx: %s", decision.Amount.String(), address, shown))
	return res, nil
}
