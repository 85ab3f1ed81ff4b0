// Package action implements the approve-then-act flow shared by the swap,
// bet, stake and claim screens.
package action

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// State of an approve-then-act flow.
type State string

const (
	StateNeedsApproval State = "needs_approval"
	StateApproving     State = "approving"
	StateReady         State = "ready"
	StateSubmitting    State = "submitting"
)

// Outcome of a settled transaction.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeAmbiguous Outcome = "ambiguous"
)

// Approver reads and grants a token allowance.
type Approver interface {
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	ApproveMax(ctx context.Context, spender common.Address) (*types.Transaction, error)
}

// Waiter blocks until a transaction is mined.
type Waiter interface {
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// EventChecker reports whether a receipt carries a named event.
type EventChecker interface {
	HasEvent(receipt *types.Receipt, name string) bool
}

// Gate is the allowance a flow needs before its primary action is enabled.
type Gate struct {
	Token   Approver
	Owner   common.Address
	Spender common.Address
}

// Act describes one primary action.
type Act struct {
	Name string
	// Validate checks input constraints; a failure leaves the flow Ready.
	Validate func(ctx context.Context) error
	Send     func(ctx context.Context) (*types.Transaction, error)
	// Events and ExpectedEvent decide success on a mined receipt. An empty
	// ExpectedEvent accepts any successful receipt.
	Events        EventChecker
	ExpectedEvent string
	// OnSent runs once the transaction has been accepted by the node.
	OnSent func()
}

// Result describes a settled approval or action.
type Result struct {
	Action      string         `json:"action"`
	Account     common.Address `json:"account"`
	TxHash      common.Hash    `json:"tx_hash"`
	Outcome     Outcome        `json:"outcome"`
	BlockNumber uint64         `json:"block_number,omitempty"`
	Error       string         `json:"error,omitempty"`
	Duration    time.Duration  `json:"duration"`

	Receipt *types.Receipt `json:"-"`
	Err     error          `json:"-"`
}

// Observer hears about every transaction a flow sends and settles.
type Observer interface {
	TransactionSent(ctx context.Context, action string, account common.Address, tx *types.Transaction, expectedEvent string)
	TransactionSettled(ctx context.Context, result *Result)
}

// Controls tells a view which buttons to enable.
type Controls struct {
	State          State `json:"state"`
	ApproveEnabled bool  `json:"approve_enabled"`
	ActionEnabled  bool  `json:"action_enabled"`
	Busy           bool  `json:"busy"`
}

// Flow is the approve-then-act state machine:
// NeedsApproval -> Approving -> Ready -> Submitting -> Ready.
type Flow struct {
	name     string
	account  common.Address
	gate     *Gate
	waiter   Waiter
	observer Observer
	metrics  *metrics.Manager
	logger   *logrus.Entry

	mu    sync.Mutex
	state State
	last  *Result
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithObserver reports sent and settled transactions to o.
func WithObserver(o Observer) FlowOption {
	return func(f *Flow) { f.observer = o }
}

// WithMetrics records transitions and outcomes.
func WithMetrics(m *metrics.Manager) FlowOption {
	return func(f *Flow) { f.metrics = m }
}

// NewFlow creates a flow for account. A nil gate means the action needs
// no allowance and the flow starts Ready; otherwise it starts in
// NeedsApproval until Refresh reads a non-zero allowance.
func NewFlow(name string, account common.Address, gate *Gate, waiter Waiter, opts ...FlowOption) *Flow {
	f := &Flow{
		name:    name,
		account: account,
		gate:    gate,
		waiter:  waiter,
		logger:  utils.Component("action").WithField("flow", name),
		state:   StateReady,
	}
	if gate != nil {
		f.state = StateNeedsApproval
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the flow name.
func (f *Flow) Name() string {
	return f.name
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// LastResult returns the most recent settled result, if any.
func (f *Flow) LastResult() *Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Controls derives the enabled controls from the state. Input-specific
// constraints are checked separately when the action is submitted.
func (f *Flow) Controls() Controls {
	state := f.State()
	return Controls{
		State:          state,
		ApproveEnabled: state == StateNeedsApproval,
		ActionEnabled:  state == StateReady,
		Busy:           state == StateApproving || state == StateSubmitting,
	}
}

// Refresh re-reads the allowance and settles the flow in NeedsApproval or
// Ready. It leaves an in-flight flow alone.
func (f *Flow) Refresh(ctx context.Context) (State, error) {
	if f.gate == nil {
		return f.State(), nil
	}

	allowance, err := f.gate.Token.Allowance(ctx, f.gate.Owner, f.gate.Spender)
	if err != nil {
		return f.State(), err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateApproving || f.state == StateSubmitting {
		return f.state, nil
	}
	if allowance.Sign() > 0 {
		f.transition(StateReady)
	} else {
		f.transition(StateNeedsApproval)
	}
	return f.state, nil
}

// Approve submits an unlimited approval for the gate's spender and waits
// for it. Success moves the flow to Ready; any failure returns it to
// NeedsApproval.
func (f *Flow) Approve(ctx context.Context) (*Result, error) {
	if f.gate == nil {
		return nil, utils.NewAppError(utils.ErrCodeState, "action does not require approval", f.name)
	}
	if err := f.enter(StateNeedsApproval, StateApproving); err != nil {
		return nil, err
	}

	name := f.name + ".approve"
	start := time.Now()

	tx, err := f.gate.Token.ApproveMax(ctx, f.gate.Spender)
	if err != nil {
		return f.settle(ctx, StateNeedsApproval, f.failed(name, common.Hash{}, start, nil, err))
	}
	f.sent(ctx, name, tx, "")

	receipt, err := f.waiter.WaitMined(ctx, tx)
	if err != nil {
		return f.settle(ctx, StateNeedsApproval, f.unconfirmed(name, tx, start, err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return f.settle(ctx, StateNeedsApproval, f.failed(name, tx.Hash(), start, receipt,
			utils.NewAppError(utils.ErrCodeTransaction, "approval reverted", tx.Hash().Hex())))
	}

	return f.settle(ctx, StateReady, f.result(name, tx.Hash(), start, receipt, OutcomeSuccess, nil))
}

// Submit runs act. It is only allowed in Ready and always returns the flow
// to Ready. A mined receipt missing act.ExpectedEvent, or a sent
// transaction whose receipt never arrives, is neither success nor failure:
// the result is ambiguous and the returned error says so.
func (f *Flow) Submit(ctx context.Context, act Act) (*Result, error) {
	if err := f.enter(StateReady, StateSubmitting); err != nil {
		return nil, err
	}

	if act.Validate != nil {
		if err := act.Validate(ctx); err != nil {
			f.mu.Lock()
			f.transition(StateReady)
			f.mu.Unlock()
			return nil, err
		}
	}

	start := time.Now()
	tx, err := act.Send(ctx)
	if err != nil {
		return f.settle(ctx, StateReady, f.failed(act.Name, common.Hash{}, start, nil, err))
	}
	if act.OnSent != nil {
		act.OnSent()
	}
	f.sent(ctx, act.Name, tx, act.ExpectedEvent)

	receipt, err := f.waiter.WaitMined(ctx, tx)
	if err != nil {
		return f.settle(ctx, StateReady, f.unconfirmed(act.Name, tx, start, err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return f.settle(ctx, StateReady, f.failed(act.Name, tx.Hash(), start, receipt,
			utils.NewAppError(utils.ErrCodeTransaction, "transaction reverted", tx.Hash().Hex())))
	}

	if act.ExpectedEvent != "" && (act.Events == nil || !act.Events.HasEvent(receipt, act.ExpectedEvent)) {
		ambiguous := utils.NewAppError(utils.ErrCodeAmbiguous, utils.ErrAmbiguousOutcome.Message,
			fmt.Sprintf("%s event not found in %s", act.ExpectedEvent, tx.Hash().Hex()))
		return f.settle(ctx, StateReady, f.result(act.Name, tx.Hash(), start, receipt, OutcomeAmbiguous, ambiguous))
	}

	return f.settle(ctx, StateReady, f.result(act.Name, tx.Hash(), start, receipt, OutcomeSuccess, nil))
}

// enter moves from want to next atomically.
func (f *Flow) enter(want, next State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != want {
		return utils.NewAppError(utils.ErrCodeState, utils.ErrInvalidState.Message,
			fmt.Sprintf("%s is %s, needs %s", f.name, f.state, want))
	}
	f.transition(next)
	return nil
}

// transition must be called with mu held.
func (f *Flow) transition(next State) {
	if f.state == next {
		return
	}
	if pm := f.metrics.GetPrometheusMetrics(); pm != nil {
		pm.RecordFlowTransition(f.name, string(f.state), string(next))
	}
	f.logger.WithFields(logrus.Fields{"from": f.state, "to": next}).Debug("Flow transition")
	f.state = next
}

func (f *Flow) sent(ctx context.Context, name string, tx *types.Transaction, expectedEvent string) {
	if f.observer != nil {
		f.observer.TransactionSent(ctx, name, f.account, tx, expectedEvent)
	}
}

func (f *Flow) failed(name string, hash common.Hash, start time.Time, receipt *types.Receipt, err error) *Result {
	return f.result(name, hash, start, receipt, OutcomeFailed, err)
}

// unconfirmed reports a sent transaction whose receipt never arrived. The
// node accepted it and it may still mine, so the outcome is ambiguous.
func (f *Flow) unconfirmed(name string, tx *types.Transaction, start time.Time, err error) *Result {
	ambiguous := utils.WrapError(utils.ErrCodeAmbiguous, utils.ErrAmbiguousOutcome.Message, err)
	ambiguous.Details = fmt.Sprintf("no receipt for %s: %v", tx.Hash().Hex(), err)
	return f.result(name, tx.Hash(), start, nil, OutcomeAmbiguous, ambiguous)
}

func (f *Flow) result(name string, hash common.Hash, start time.Time, receipt *types.Receipt, outcome Outcome, err error) *Result {
	r := &Result{
		Action:   name,
		Account:  f.account,
		TxHash:   hash,
		Outcome:  outcome,
		Duration: time.Since(start),
		Receipt:  receipt,
		Err:      err,
	}
	if receipt != nil && receipt.BlockNumber != nil {
		r.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func (f *Flow) settle(ctx context.Context, next State, r *Result) (*Result, error) {
	f.mu.Lock()
	f.transition(next)
	f.last = r
	f.mu.Unlock()

	if pm := f.metrics.GetPrometheusMetrics(); pm != nil {
		pm.RecordTransaction(r.Action, string(r.Outcome), r.Duration)
	}
	entry := f.logger.WithFields(logrus.Fields{
		"action":  r.Action,
		"outcome": r.Outcome,
		"tx_hash": r.TxHash.Hex(),
	})
	switch r.Outcome {
	case OutcomeSuccess:
		entry.Info("Transaction confirmed")
	case OutcomeAmbiguous:
		entry.WithError(r.Err).Warn("Transaction effect unconfirmed")
	default:
		entry.WithError(r.Err).Warn("Transaction failed")
	}

	if f.observer != nil {
		f.observer.TransactionSettled(ctx, r)
	}
	return r, r.Err
}
