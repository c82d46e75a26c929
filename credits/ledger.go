// Package credits implements the credit ledger: balance reads, atomic
// deductions, idempotent credits, and the deduct-generate-refund guard
// wrapped around paid operations.
package credits

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"charforge/core"
)

// Pool selects which balance a movement applies to. Interactive (web app)
// and programmatic (API key) usage are billed separately.
type Pool string

const (
	// PoolApp is the interactive balance, spent by session-authenticated
	// callers and topped up through checkout.
	PoolApp Pool = "app"

	// PoolAPI is the programmatic balance, spent by API-key callers.
	PoolAPI Pool = "api"
)

// column maps the pool to its balances column. The fallthrough default
// keeps an unexpected value from ever touching the wrong column.
func (p Pool) column() (string, error) {
	switch p {
	case PoolApp:
		return "app_credits", nil
	case PoolAPI:
		return "api_credits", nil
	default:
		return "", fmt.Errorf("credits: unknown pool %q", string(p))
	}
}

// Movement kinds recorded in credit_transactions.
const (
	kindDeduct   = "deduct"
	kindRefund   = "refund"
	kindPurchase = "purchase"
	kindGrant    = "grant"
)

// Ledger performs balance arithmetic against the balances and
// credit_transactions tables.
//
// Thread Safety: Ledger is safe for concurrent use. Every movement runs in
// its own SQL transaction and deductions are conditional updates, so two
// racing callers can never overdraw a balance.
type Ledger struct {
	conn *sql.DB
}

// NewLedger creates a Ledger over an open, migrated database connection.
func NewLedger(conn *sql.DB) (*Ledger, error) {
	if conn == nil {
		return nil, fmt.Errorf("credits: connection cannot be nil")
	}
	return &Ledger{conn: conn}, nil
}

// Balance returns the user's current balance in the given pool.
func (l *Ledger) Balance(ctx context.Context, userID string, pool Pool) (int64, error) {
	col, err := pool.column()
	if err != nil {
		return 0, err
	}
	var balance int64
	query := fmt.Sprintf(`SELECT %s FROM balances WHERE user_id = ?`, col)
	if err := l.conn.QueryRowContext(ctx, query, userID).Scan(&balance); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("credits: no balance row for user %s", userID)
		}
		return 0, fmt.Errorf("credits: failed to read balance: %w", err)
	}
	return balance, nil
}

// Deduct atomically removes amount credits from the user's pool and records
// the movement under a fresh idempotency reference, which is returned so a
// later refund can link back to it.
//
// The check and the decrement are one conditional UPDATE: when the balance
// is short the update matches zero rows and Deduct fails with
// InsufficientCreditsError without changing anything. Callers that did an
// advisory balance read first must still treat this failure as expected,
// since a concurrent deduction can win the race in between.
func (l *Ledger) Deduct(ctx context.Context, userID string, pool Pool, amount int64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("credits: deduction amount must be positive, got %d", amount)
	}
	col, err := pool.column()
	if err != nil {
		return "", err
	}
	reference := "ded_" + uuid.NewString()

	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("credits: failed to begin deduction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(
		`UPDATE balances SET %s = %s - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ? AND %s >= ?`, col, col, col)
	res, err := tx.ExecContext(ctx, query, amount, userID, amount)
	if err != nil {
		return "", fmt.Errorf("credits: deduction failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("credits: failed to check deduction result: %w", err)
	}
	if affected == 0 {
		// Read through the open tx: the pool may have only one connection.
		var balance int64
		balanceQuery := fmt.Sprintf(`SELECT %s FROM balances WHERE user_id = ?`, col)
		if scanErr := tx.QueryRowContext(ctx, balanceQuery, userID).Scan(&balance); scanErr != nil {
			balance = 0
		}
		return "", &core.InsufficientCreditsError{
			Message:   fmt.Sprintf("insufficient credits: need %d, have %d", amount, balance),
			Required:  amount,
			Available: balance,
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (user_id, pool, amount, kind, reference)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, string(pool), -amount, kindDeduct, reference); err != nil {
		return "", fmt.Errorf("credits: failed to record deduction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("credits: failed to commit deduction: %w", err)
	}
	return reference, nil
}

// Credit adds amount credits to the user's pool, recorded under the given
// reference. The reference is the idempotency boundary: crediting the same
// reference twice moves credits once and reports the replay via applied.
//
// kind must be one of the recorded movement kinds; use Refund for
// compensations and pass payment event IDs as references for purchases.
func (l *Ledger) Credit(ctx context.Context, userID string, pool Pool, amount int64, kind, reference string) (applied bool, err error) {
	if amount <= 0 {
		return false, fmt.Errorf("credits: credit amount must be positive, got %d", amount)
	}
	if reference == "" {
		return false, fmt.Errorf("credits: credit reference is required")
	}
	col, err := pool.column()
	if err != nil {
		return false, err
	}

	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("credits: failed to begin credit: %w", err)
	}
	defer tx.Rollback()

	// The transaction row goes first: a replayed reference hits the unique
	// constraint here, before the balance moves.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (user_id, pool, amount, kind, reference)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, string(pool), amount, kind, reference); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("credits: failed to record credit: %w", err)
	}

	query := fmt.Sprintf(
		`UPDATE balances SET %s = %s + ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
		col, col)
	res, err := tx.ExecContext(ctx, query, amount, userID)
	if err != nil {
		return false, fmt.Errorf("credits: credit failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("credits: failed to check credit result: %w", err)
	}
	if affected == 0 {
		return false, fmt.Errorf("credits: no balance row for user %s", userID)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("credits: failed to commit credit: %w", err)
	}
	return true, nil
}

// Refund compensates a failed paid operation by crediting back the amount
// deducted under deductReference.
func (l *Ledger) Refund(ctx context.Context, userID string, pool Pool, amount int64, deductReference string) error {
	_, err := l.Credit(ctx, userID, pool, amount, kindRefund, "ref_"+deductReference)
	return err
}

// Purchase credits a completed checkout. eventID is the payment provider's
// event identifier, so webhook redeliveries replay into a no-op.
func (l *Ledger) Purchase(ctx context.Context, userID string, pool Pool, amount int64, eventID string) (bool, error) {
	return l.Credit(ctx, userID, pool, amount, kindPurchase, eventID)
}

// Grant credits a promotional or signup allowance under the given
// reference.
func (l *Ledger) Grant(ctx context.Context, userID string, pool Pool, amount int64, reference string) (bool, error) {
	return l.Credit(ctx, userID, pool, amount, kindGrant, reference)
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// modernc.org/sqlite exposes these as plain errors carrying the SQLite
// message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
