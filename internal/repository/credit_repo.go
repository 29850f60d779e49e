package repository

import (
	"context"
	"errors"
	"fmt"

	"crystalgate/internal/model"
	"crystalgate/internal/querybudget"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInsufficientBalance is returned when a deduction would make the balance negative.
var ErrInsufficientBalance = errors.New("insufficient_balance")

// SignupReason tags the transaction written when a balance is first created.
const SignupReason = "signup"

// CreditRepository is the credit ledger. Every mutation appends a transaction in the same
// database transaction as the balance change.
type CreditRepository interface {
	// GetOrCreate returns the balance, creating it with the signup grant and a matching award on first access.
	GetOrCreate(ctx context.Context, userID string) (*model.CreditBalance, error)
	Award(ctx context.Context, userID string, amount int64, reason string, metadata map[string]any) (*model.CreditTransaction, error)
	// Deduct returns ErrInsufficientBalance, writing nothing, when balance < amount.
	Deduct(ctx context.Context, userID string, amount int64, reason string, metadata map[string]any) (*model.CreditTransaction, error)
	// History returns transactions most recent first.
	History(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error)
}

type creditRepo struct {
	pool        *pgxpool.Pool
	signupGrant int64
}

// NewCreditRepo creates a new CreditRepository.
func NewCreditRepo(pool *pgxpool.Pool, signupGrant int64) CreditRepository {
	return &creditRepo{pool: pool, signupGrant: signupGrant}
}

const balanceColumns = `user_id, balance, total_earned, total_spent, created_at, updated_at`

func scanBalance(row pgx.Row) (*model.CreditBalance, error) {
	var b model.CreditBalance
	if err := row.Scan(&b.UserID, &b.Balance, &b.TotalEarned, &b.TotalSpent, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// ensureBalance creates the balance row and its signup award if the row is missing.
// ON CONFLICT makes concurrent first accesses create exactly one row and one award.
func (r *creditRepo) ensureBalance(ctx context.Context, tx pgx.Tx, userID string) error {
	const insertQ = `
		INSERT INTO credit_balances (user_id, balance, total_earned, total_spent)
		VALUES ($1, $2, $2, 0)
		ON CONFLICT (user_id) DO NOTHING
	`
	tag, err := tx.Exec(ctx, insertQ, userID, r.signupGrant)
	if err != nil {
		return fmt.Errorf("creating credit balance for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	const txQ = `
		INSERT INTO credit_transactions (user_id, type, amount, reason, metadata, balance_after)
		VALUES ($1, 'award', $2, $3, '{}'::jsonb, $2)
	`
	if _, err := tx.Exec(ctx, txQ, userID, r.signupGrant, SignupReason); err != nil {
		return fmt.Errorf("recording signup grant for user %s: %w", userID, err)
	}
	return nil
}

// GetOrCreate returns the user's balance, creating it on first access.
func (r *creditRepo) GetOrCreate(ctx context.Context, userID string) (*model.CreditBalance, error) {
	if err := querybudget.Track(ctx, "read", "credit_balances"); err != nil {
		return nil, err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction for balance read: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := r.ensureBalance(ctx, tx, userID); err != nil {
		return nil, err
	}
	b, err := scanBalance(tx.QueryRow(ctx, `SELECT `+balanceColumns+` FROM credit_balances WHERE user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("fetch credit balance for user %s: %w", userID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing balance read for user %s: %w", userID, err)
	}
	return b, nil
}

// Award atomically increments the balance and appends an award transaction.
func (r *creditRepo) Award(ctx context.Context, userID string, amount int64, reason string, metadata map[string]any) (*model.CreditTransaction, error) {
	const updateQ = `
		UPDATE credit_balances
		SET balance = balance + $2, total_earned = total_earned + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING balance
	`
	return r.mutate(ctx, userID, model.TransactionAward, amount, reason, metadata, updateQ)
}

// Deduct atomically checks and decrements the balance in one conditional update.
func (r *creditRepo) Deduct(ctx context.Context, userID string, amount int64, reason string, metadata map[string]any) (*model.CreditTransaction, error) {
	const updateQ = `
		UPDATE credit_balances
		SET balance = balance - $2, total_spent = total_spent + $2, updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance
	`
	return r.mutate(ctx, userID, model.TransactionDeduction, amount, reason, metadata, updateQ)
}

func (r *creditRepo) mutate(ctx context.Context, userID string, typ model.TransactionType, amount int64, reason string, metadata map[string]any, updateQ string) (*model.CreditTransaction, error) {
	if err := querybudget.Track(ctx, "write", "credit_balances"); err != nil {
		return nil, err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction for credit %s: %w", typ, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := r.ensureBalance(ctx, tx, userID); err != nil {
		return nil, err
	}

	var balanceAfter int64
	if err := tx.QueryRow(ctx, updateQ, userID, amount).Scan(&balanceAfter); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientBalance
		}
		return nil, fmt.Errorf("applying credit %s for user %s: %w", typ, userID, err)
	}

	signed := amount
	if typ == model.TransactionDeduction {
		signed = -amount
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	t := &model.CreditTransaction{
		UserID:       userID,
		Type:         typ,
		Amount:       signed,
		Reason:       reason,
		Metadata:     metadata,
		BalanceAfter: balanceAfter,
	}
	const insertQ = `
		INSERT INTO credit_transactions (user_id, type, amount, reason, metadata, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	if err := tx.QueryRow(ctx, insertQ, userID, string(typ), signed, reason, metadata, balanceAfter).Scan(&t.ID, &t.CreatedAt); err != nil {
		return nil, fmt.Errorf("recording credit %s for user %s: %w", typ, userID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing credit %s for user %s: %w", typ, userID, err)
	}
	return t, nil
}

// History returns the most recent transactions first.
func (r *creditRepo) History(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error) {
	if err := querybudget.Track(ctx, "read", "credit_transactions"); err != nil {
		return nil, err
	}
	const q = `
		SELECT id, user_id, type, amount, reason, metadata, balance_after, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch credit history for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []model.CreditTransaction
	for rows.Next() {
		var t model.CreditTransaction
		var typ string
		if err := rows.Scan(&t.ID, &t.UserID, &typ, &t.Amount, &t.Reason, &t.Metadata, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credit transaction: %w", err)
		}
		t.Type = model.TransactionType(typ)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credit history for user %s: %w", userID, err)
	}
	return out, nil
}
