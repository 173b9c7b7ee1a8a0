package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/membankd/internal/audit"
	"github.com/fyrsmithlabs/membankd/internal/metrics"
)

// Mode is the process-wide execution mode. Sessions always start in
// Plan; the transition to Act happens only on an explicit external
// confirmation, never by self-promotion.
type Mode string

const (
	ModePlan Mode = "plan"
	ModeAct  Mode = "act"
)

// ErrModeViolation indicates an action was attempted outside its
// permitted mode. It is fatal to that call and never downgraded.
var ErrModeViolation = errors.New("executor: mode violation")

// Gate holds the mode state machine:
// Plan -(confirm)-> Act -(complete|abort)-> Plan.
// Every transition is recorded in the audit trail.
type Gate struct {
	trail  *audit.Trail
	logger *zap.Logger

	mu   sync.Mutex
	mode Mode
}

// NewGate builds a gate starting in Plan. The logger may be nil.
func NewGate(trail *audit.Trail, logger *zap.Logger) (*Gate, error) {
	if trail == nil {
		return nil, fmt.Errorf("executor: audit trail is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{trail: trail, logger: logger.Named("mode"), mode: ModePlan}, nil
}

// Mode returns the current mode.
func (g *Gate) Mode() Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode
}

// Confirm transitions Plan to Act on the external confirmation
// signal.
func (g *Gate) Confirm(ctx context.Context) error {
	return g.transition(ctx, ModePlan, ModeAct, "confirm")
}

// Complete returns to Plan after a proposal was fully applied.
func (g *Gate) Complete(ctx context.Context) error {
	return g.transition(ctx, ModeAct, ModePlan, "complete")
}

// Abort returns to Plan after a halted or discarded proposal.
func (g *Gate) Abort(ctx context.Context) error {
	return g.transition(ctx, ModeAct, ModePlan, "abort")
}

func (g *Gate) transition(ctx context.Context, from, to Mode, cause string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mode != from {
		return fmt.Errorf("%w: %s requires %s mode, currently %s", ErrModeViolation, cause, from, g.mode)
	}
	if err := g.trail.Record(ctx, audit.Entry{
		Kind:   audit.KindModeTransition,
		Detail: fmt.Sprintf("%s -> %s (%s)", from, to, cause),
	}); err != nil {
		return fmt.Errorf("record mode transition: %w", err)
	}
	g.mode = to
	g.logger.Info("mode transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("cause", cause))
	return nil
}

// RequireAct fails with ErrModeViolation unless the gate is in Act.
// Callers invoke it before any mutating tracker call so that no remote
// side effect can happen from Plan.
func (g *Gate) RequireAct(op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mode != ModeAct {
		metrics.ModeViolations.Inc()
		return fmt.Errorf("%w: %s requires act mode, currently %s", ErrModeViolation, op, g.mode)
	}
	return nil
}
