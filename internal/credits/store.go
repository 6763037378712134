// Package credits maintains per-user credit balances and the append-only
// transaction ledger backing them.
package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/applydraft/pkg/models"
)

// ErrInsufficientCredits is returned when a charge would take a balance
// below zero. The balance is left untouched.
var ErrInsufficientCredits = errors.New("insufficient credits")

// DefaultStartingBalance is granted to a user on first contact with the
// credit system.
const DefaultStartingBalance = 10.0

// Store wraps the credit tables.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InitSchema creates the credit tables when they do not exist yet.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS credit_balances (
		user_id TEXT PRIMARY KEY,
		balance DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS credit_transactions (
		id SERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		kind TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_credit_tx_user ON credit_transactions(user_id, created_at DESC);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initializing credit schema: %w", err)
	}
	return nil
}

// GetBalance returns the user's balance, granting the starting balance on
// first access.
func (s *Store) GetBalance(ctx context.Context, userID string) (float64, error) {
	var balance float64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM credit_balances WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO credit_balances (user_id, balance) VALUES ($1, $2)
			 ON CONFLICT (user_id) DO NOTHING`, userID, DefaultStartingBalance)
		if err != nil {
			return 0, fmt.Errorf("creating balance for %s: %w", userID, err)
		}
		log.Info().Str("user_id", userID).Float64("balance", DefaultStartingBalance).Msg("granted starting credits")
		return DefaultStartingBalance, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading balance for %s: %w", userID, err)
	}
	return balance, nil
}

// Charge atomically deducts amount from the user's balance and records a
// ledger entry. It fails with ErrInsufficientCredits when the balance does
// not cover the amount.
func (s *Store) Charge(ctx context.Context, userID string, amount float64, description string) (float64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("charge amount must not be negative, got %f", amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting charge transaction: %w", err)
	}
	defer tx.Rollback()

	var balance float64
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM credit_balances WHERE user_id = $1 FOR UPDATE`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInsufficientCredits
	}
	if err != nil {
		return 0, fmt.Errorf("locking balance for %s: %w", userID, err)
	}
	if balance < amount {
		return balance, ErrInsufficientCredits
	}

	newBalance := balance - amount
	if _, err := tx.ExecContext(ctx,
		`UPDATE credit_balances SET balance = $1, updated_at = NOW() WHERE user_id = $2`,
		newBalance, userID); err != nil {
		return 0, fmt.Errorf("updating balance for %s: %w", userID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (user_id, amount, kind, description) VALUES ($1, $2, 'usage', $3)`,
		userID, -amount, description); err != nil {
		return 0, fmt.Errorf("recording charge for %s: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing charge for %s: %w", userID, err)
	}

	log.Debug().Str("user_id", userID).Float64("amount", amount).Float64("balance", newBalance).Msg("credits charged")
	return newBalance, nil
}

// AddCredits increases the user's balance and records a grant entry.
func (s *Store) AddCredits(ctx context.Context, userID string, amount float64, description string) (float64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive, got %f", amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting grant transaction: %w", err)
	}
	defer tx.Rollback()

	var newBalance float64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO credit_balances (user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET balance = credit_balances.balance + $2, updated_at = NOW()
		 RETURNING balance`, userID, amount).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("granting credits to %s: %w", userID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (user_id, amount, kind, description) VALUES ($1, $2, 'purchase', $3)`,
		userID, amount, description); err != nil {
		return 0, fmt.Errorf("recording grant for %s: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing grant for %s: %w", userID, err)
	}
	return newBalance, nil
}

// History returns the user's most recent ledger entries, newest first.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount, kind, description, created_at
		 FROM credit_transactions WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("reading ledger for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []models.CreditTransaction
	for rows.Next() {
		var t models.CreditTransaction
		var created time.Time
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Description, &created); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		t.CreatedAt = created
		out = append(out, t)
	}
	return out, rows.Err()
}
