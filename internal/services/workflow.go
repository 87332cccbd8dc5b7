package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ecodash/internal/core"
)

// State of a write workflow.
type State string

const (
	StateIdle                 State = "idle"
	StateValidating           State = "validating"
	StateCheckingConflicts    State = "checking_conflicts"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateWriting              State = "writing"
	StateSucceeded            State = "succeeded"
	StateFailed               State = "failed"
)

// FailureReason classifies a Failed outcome.
type FailureReason string

const (
	ReasonEmptyRecord FailureReason = "empty_record"
	ReasonInvalid     FailureReason = "invalid"
	ReasonWriteFailed FailureReason = "write_failed"
)

var (
	ErrWorkflowBusy    = errors.New("workflow is busy")
	ErrNotAwaiting     = errors.New("workflow is not awaiting confirmation")
	ErrNothingToCancel = errors.New("workflow has nothing to cancel")
	ErrNoSubmission    = errors.New("no submission")
)

// WorkflowConfig holds the tunables of a write workflow.
type WorkflowConfig struct {
	// CloseDelay is how long a successful form stays open before closing.
	CloseDelay time.Duration
}

// DefaultWorkflowConfig returns sensible defaults
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{CloseDelay: 1500 * time.Millisecond}
}

// Outcome is the observable result of a workflow step.
type Outcome struct {
	State     State                  `json:"state"`
	Section   core.Section           `json:"section,omitempty"`
	Conflicts []core.ExpenditureType `json:"conflicts,omitempty"`
	Reason    FailureReason          `json:"reason,omitempty"`
	Message   string                 `json:"message,omitempty"`
	// CloseAfter is set on success; the form closes after this delay.
	CloseAfter time.Duration `json:"-"`
	// Refresh asks the caller to refetch the section.
	Refresh bool `json:"refresh,omitempty"`
}

// Workflow drives one form through validation, duplicate check, optional
// confirmation and the concurrent writes. It is safe for concurrent use; a
// second Submit while a step is running returns ErrWorkflowBusy.
type Workflow struct {
	writer    RecordWriter
	checker   *DuplicateChecker
	config    WorkflowConfig
	onSuccess func(ctx context.Context, section core.Section)

	mu        sync.Mutex
	state     State
	gen       uint64
	pending   Submission
	conflicts []core.ExpenditureType
	last      Outcome
}

func NewWorkflow(writer RecordWriter, checker *DuplicateChecker, config WorkflowConfig) *Workflow {
	return &Workflow{
		writer:  writer,
		checker: checker,
		config:  config,
		state:   StateIdle,
		last:    Outcome{State: StateIdle},
	}
}

// OnSuccess registers a hook run after every successful write, before the
// outcome is returned. Used to invalidate cached section lists.
func (w *Workflow) OnSuccess(fn func(ctx context.Context, section core.Section)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onSuccess = fn
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Last returns the outcome of the most recent step.
func (w *Workflow) Last() Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Submit runs a submission from Idle. A settled workflow (Succeeded or
// Failed) is reset to Idle first.
func (w *Workflow) Submit(ctx context.Context, sub Submission) (Outcome, error) {
	if sub == nil {
		return Outcome{}, ErrNoSubmission
	}

	w.mu.Lock()
	switch w.state {
	case StateIdle, StateSucceeded, StateFailed:
	default:
		state := w.state
		w.mu.Unlock()
		return Outcome{}, fmt.Errorf("%w: %s", ErrWorkflowBusy, state)
	}
	w.resetLocked()
	w.state = StateValidating
	gen := w.gen
	w.mu.Unlock()

	if err := sub.Validate(); err != nil {
		reason := ReasonInvalid
		if errors.Is(err, core.ErrEmptyRecord) {
			reason = ReasonEmptyRecord
		}
		return w.settle(gen, Outcome{
			State:   StateFailed,
			Section: sub.Section(),
			Reason:  reason,
			Message: err.Error(),
		}), nil
	}

	company, year, candidates, check := sub.ConflictScope()
	if !check || sub.FormMode() == ModeEdit || w.checker == nil {
		if !w.transition(gen, StateWriting) {
			return w.Last(), nil
		}
		return w.write(ctx, gen, sub, nil), nil
	}

	if !w.transition(gen, StateCheckingConflicts) {
		return w.Last(), nil
	}
	conflicts := w.checker.FindConflicts(ctx, company, year, candidates)

	w.mu.Lock()
	if w.gen != gen {
		// Cancelled while probing; the probe results are dropped.
		out := w.last
		w.mu.Unlock()
		return out, nil
	}
	if len(conflicts) > 0 {
		w.state = StateAwaitingConfirmation
		w.pending = sub
		w.conflicts = conflicts
		w.last = Outcome{
			State:     StateAwaitingConfirmation,
			Section:   sub.Section(),
			Conflicts: conflicts,
			Message:   conflictMessage(company, year, conflicts),
		}
		out := w.last
		w.mu.Unlock()
		return out, nil
	}
	w.state = StateWriting
	w.mu.Unlock()

	return w.write(ctx, gen, sub, nil), nil
}

// Confirm accepts the conflicts and writes. Conflicting types are updated in
// place, the rest are created.
func (w *Workflow) Confirm(ctx context.Context) (Outcome, error) {
	w.mu.Lock()
	if w.state != StateAwaitingConfirmation {
		state := w.state
		w.mu.Unlock()
		return Outcome{}, fmt.Errorf("%w: %s", ErrNotAwaiting, state)
	}
	sub := w.pending
	overwrite := make(map[string]bool, len(w.conflicts))
	for _, t := range w.conflicts {
		overwrite[t.ID] = true
	}
	w.state = StateWriting
	gen := w.gen
	w.mu.Unlock()

	return w.write(ctx, gen, sub, overwrite), nil
}

// Cancel abandons a pending confirmation, or a conflict check still in
// flight, and returns to Idle with all state cleared.
func (w *Workflow) Cancel() (Outcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case StateAwaitingConfirmation, StateCheckingConflicts:
	default:
		return Outcome{}, fmt.Errorf("%w: %s", ErrNothingToCancel, w.state)
	}
	w.resetLocked()
	w.gen++
	return w.last, nil
}

func (w *Workflow) write(ctx context.Context, gen uint64, sub Submission, overwrite map[string]bool) Outcome {
	ops := sub.Writes(overwrite)
	if err := RunWrites(ctx, w.writer, ops); err != nil {
		slog.ErrorContext(ctx, "Workflow write failed",
			"section", string(sub.Section()),
			"ops", len(ops),
			"error", err)
		return w.settle(gen, Outcome{
			State:   StateFailed,
			Section: sub.Section(),
			Reason:  ReasonWriteFailed,
			Message: err.Error(),
		})
	}

	w.mu.Lock()
	hook := w.onSuccess
	w.mu.Unlock()
	if hook != nil {
		hook(ctx, sub.Section())
	}

	slog.InfoContext(ctx, "Workflow write succeeded",
		"section", string(sub.Section()),
		"ops", len(ops))
	return w.settle(gen, Outcome{
		State:      StateSucceeded,
		Section:    sub.Section(),
		Message:    fmt.Sprintf("Saved %d record(s)", len(ops)),
		CloseAfter: w.config.CloseDelay,
		Refresh:    true,
	})
}

// RunWrites issues every op concurrently and waits for all of them to
// settle. There is no rollback: ops that succeeded stay written even when
// others fail. All failures are joined into the returned error.
func RunWrites(ctx context.Context, writer RecordWriter, ops []WriteOp) error {
	errs := make([]error, len(ops))
	var g errgroup.Group
	for i, op := range ops {
		g.Go(func() error {
			if err := op.Run(ctx, writer); err != nil {
				errs[i] = fmt.Errorf("%s: %w", op.Label, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (w *Workflow) transition(gen uint64, to State) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return false
	}
	w.state = to
	return true
}

func (w *Workflow) settle(gen uint64, out Outcome) Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return w.last
	}
	w.state = out.State
	w.pending = nil
	w.conflicts = nil
	w.last = out
	return out
}

func (w *Workflow) resetLocked() {
	w.state = StateIdle
	w.pending = nil
	w.conflicts = nil
	w.last = Outcome{State: StateIdle}
}
