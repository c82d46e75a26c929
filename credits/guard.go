// guard.go implements the Guard molecule that wraps a paid operation in
// the deduct-run-refund pattern.
package credits

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"charforge/core"
	"charforge/logging"
)

// Guard charges a fixed cost before running a paid operation and issues a
// compensating refund when the operation fails.
//
// Refunds are best effort: a refund failure is logged and swallowed so it
// can never mask the original operation error. The documented consequence
// is that a user can lose the cost of one generation when the refund write
// itself fails; everything short of that keeps the invariant "balance
// decreases by exactly the cost only when a generation succeeds".
type Guard struct {
	ledger *Ledger
	cost   int64
	log    *logging.Logger
}

// NewGuard creates a Guard charging cost credits per operation.
func NewGuard(ledger *Ledger, cost int64, logger *logging.Logger) (*Guard, error) {
	if ledger == nil {
		return nil, fmt.Errorf("credits: ledger cannot be nil")
	}
	if cost <= 0 {
		return nil, fmt.Errorf("credits: cost must be positive, got %d", cost)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Guard{
		ledger: ledger,
		cost:   cost,
		log:    logger.Named("credit-guard"),
	}, nil
}

// Cost returns the per-operation charge.
func (g *Guard) Cost() int64 {
	return g.cost
}

// Run executes fn with the user's pool charged for one operation.
//
// Sequence: an advisory balance read fails fast without touching the
// ledger; then the atomic conditional deduction runs, and can still fail
// with the same InsufficientCreditsError when a concurrent caller won the
// race between the read and the deduction. Only after a successful
// deduction does fn run. Any fn error triggers a best-effort refund and
// propagates unchanged.
func (g *Guard) Run(ctx context.Context, userID string, pool Pool, fn func(ctx context.Context) error) error {
	balance, err := g.ledger.Balance(ctx, userID, pool)
	if err != nil {
		return err
	}
	if balance < g.cost {
		return &core.InsufficientCreditsError{
			Message:   fmt.Sprintf("insufficient credits: need %d, have %d", g.cost, balance),
			Required:  g.cost,
			Available: balance,
		}
	}

	reference, err := g.ledger.Deduct(ctx, userID, pool, g.cost)
	if err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		// The refund deliberately ignores ctx cancellation: a caller going
		// away mid-generation must not strand the deducted credits.
		if refundErr := g.ledger.Refund(context.WithoutCancel(ctx), userID, pool, g.cost, reference); refundErr != nil {
			g.log.Error("refund failed after generation error",
				zap.String("user_id", userID),
				zap.String("pool", string(pool)),
				zap.String("reference", reference),
				zap.Error(refundErr))
		} else {
			g.log.Info("refunded failed generation",
				zap.String("user_id", userID),
				zap.String("reference", reference))
		}
		return err
	}
	return nil
}
