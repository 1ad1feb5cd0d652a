package affiliate

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-settlement/internal/postgres"
)

type PGStore struct{ DB postgres.DBTX }

func (s *PGStore) Insert(ctx context.Context, a Account) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO affiliate_accounts(wallet_address, commission_rate, created_at, updated_at)
		VALUES ($1, $2::numeric, $3, $3)`, a.Wallet, a.CommissionRate.String(), a.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("insert affiliate: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, wallet string) (Account, error) {
	var (
		a    Account
		rate string
	)
	err := s.DB.QueryRow(ctx, `
		SELECT wallet_address, commission_rate::text, total_transactions, successful_transactions,
		       commission_cents, created_at, updated_at
		FROM affiliate_accounts WHERE wallet_address = $1`, wallet).
		Scan(&a.Wallet, &rate, &a.TotalTransactions, &a.SuccessfulTransactions,
			&a.CommissionCents, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("load affiliate: %w", err)
	}
	if a.CommissionRate, err = decimal.NewFromString(rate); err != nil {
		return Account{}, fmt.Errorf("parse commission rate %q: %w", rate, err)
	}
	return a, nil
}

func (s *PGStore) Record(ctx context.Context, wallet string, transactions, successful, commissionCents int64) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE affiliate_accounts
		SET total_transactions = total_transactions + $2,
		    successful_transactions = successful_transactions + $3,
		    commission_cents = commission_cents + $4,
		    updated_at = now()
		WHERE wallet_address = $1`, wallet, transactions, successful, commissionCents)
	if err != nil {
		return fmt.Errorf("record affiliate totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
