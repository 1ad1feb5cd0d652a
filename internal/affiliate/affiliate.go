// Package affiliate keeps per-wallet commission totals. Accrual runs inside
// the settlement transaction: an unknown wallet is skipped, but a store error
// rolls the settlement back.
package affiliate

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
)

var (
	ErrNotFound = errors.New("affiliate not found")
	ErrExists   = errors.New("affiliate already exists")
)

var walletRE = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

type Account struct {
	Wallet                 string          `json:"walletAddress"`
	CommissionRate         decimal.Decimal `json:"commissionRate"`
	TotalTransactions      int64           `json:"totalTransactions"`
	SuccessfulTransactions int64           `json:"successfulTransactions"`
	CommissionCents        int64           `json:"commissionCents"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

type Store interface {
	Insert(ctx context.Context, a Account) error
	Get(ctx context.Context, wallet string) (Account, error)
	// Record adds to the running totals of wallet.
	Record(ctx context.Context, wallet string, transactions, successful, commissionCents int64) error
}

// NormalizeWallet lowercases s and checks it is a 0x-prefixed 20-byte hex
// address.
func NormalizeWallet(s string) (string, error) {
	w := strings.ToLower(strings.TrimSpace(s))
	if !walletRE.MatchString(w) {
		return "", apperr.Newf(apperr.KindValidation, "invalid wallet address %q", s)
	}
	return w, nil
}

// Commission is total × rate rounded half up to whole cents.
func Commission(totalCents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(totalCents).Mul(rate).Round(0).IntPart()
}

type Service struct {
	store Store
	log   zerolog.Logger
}

func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log.With().Str("component", "affiliate").Logger()}
}

func (s *Service) Create(ctx context.Context, wallet string, rate decimal.Decimal) (Account, error) {
	w, err := NormalizeWallet(wallet)
	if err != nil {
		return Account{}, err
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return Account{}, apperr.New(apperr.KindValidation, "commission rate must be between 0 and 1")
	}
	now := time.Now().UTC()
	a := Account{Wallet: w, CommissionRate: rate, CreatedAt: now, UpdatedAt: now}
	if err := s.store.Insert(ctx, a); err != nil {
		if errors.Is(err, ErrExists) {
			return Account{}, apperr.Newf(apperr.KindValidation, "affiliate %s already exists", w)
		}
		return Account{}, err
	}
	s.log.Info().Str("wallet", w).Str("rate", rate.String()).Msg("affiliate created")
	return a, nil
}

func (s *Service) Get(ctx context.Context, wallet string) (Account, error) {
	w, err := NormalizeWallet(wallet)
	if err != nil {
		return Account{}, err
	}
	a, err := s.store.Get(ctx, w)
	if errors.Is(err, ErrNotFound) {
		return Account{}, apperr.Newf(apperr.KindNotFound, "affiliate %s not found", w)
	}
	return a, err
}

// Accrue books one settled transaction for wallet. Every outcome counts as a
// transaction; only success earns commission. An unknown wallet is logged and
// skipped.
func Accrue(ctx context.Context, store Store, log zerolog.Logger, wallet string, totalCents int64, succeeded bool) error {
	if wallet == "" {
		return nil
	}
	a, err := store.Get(ctx, wallet)
	if errors.Is(err, ErrNotFound) {
		log.Warn().Str("wallet", wallet).Msg("affiliate account missing, commission skipped")
		return nil
	}
	if err != nil {
		return err
	}

	var successful, commission int64
	if succeeded {
		successful = 1
		commission = Commission(totalCents, a.CommissionRate)
	}
	return store.Record(ctx, wallet, 1, successful, commission)
}
