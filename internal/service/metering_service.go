package service

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// CreditStatus is the metering view of an account. Unlimited is set for
// active subscribers, whose usage never consumes ledger credits; Balance is
// meaningless in that case.
type CreditStatus struct {
	Balance      int64
	Unlimited    bool
	IsSubscriber bool
}

// DebitResult reports the outcome of a debit attempt.
type DebitResult struct {
	Balance int64
	// Subscriber marks a no-op: the account is an active subscriber and the
	// ledger was not touched.
	Subscriber bool
	// Replayed marks an idempotency-key replay: the balance shown is the
	// original entry's resulting balance and no new entry was written.
	Replayed bool
}

// MeteringService combines identity-resolved accounts, the subscription
// override and the ledger into atomic credit decisions.
type MeteringService interface {
	Status(ctx context.Context, accountID string) (*CreditStatus, error)
	// Credit adds amount credits. Amount must be positive; the signed entry
	// is formed internally.
	Credit(ctx context.Context, accountID string, amount int64, source model.Source, refType, refID, idempotencyKey string, metadata map[string]string) (balance int64, replayed bool, err error)
	// Debit consumes amount credits. For source=usage an active subscriber
	// is a no-op. Shortfall fails with *InsufficientCreditsError and leaves
	// the ledger untouched.
	Debit(ctx context.Context, accountID string, amount int64, source model.Source, refType, refID, idempotencyKey string, metadata map[string]string) (*DebitResult, error)
	// Entries lists recent ledger entries for audit tooling.
	Entries(ctx context.Context, accountID string, limit int) ([]model.LedgerEntry, error)
}

type meteringService struct {
	ledger repository.LedgerRepository
	subs   repository.SubscriptionRepository
	logger zerolog.Logger
}

// NewMeteringService creates a MeteringService with a scoped logger.
func NewMeteringService(ledger repository.LedgerRepository, subs repository.SubscriptionRepository, logger zerolog.Logger) MeteringService {
	return &meteringService{
		ledger: ledger,
		subs:   subs,
		logger: logger.With().Str("service", "MeteringService").Logger(),
	}
}

// Status short-circuits for subscribers without reading the ledger.
func (s *meteringService) Status(ctx context.Context, accountID string) (*CreditStatus, error) {
	active, err := s.subs.IsActiveSubscriber(ctx, accountID)
	if err != nil {
		s.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to check subscription status")
		return nil, err
	}
	if active {
		return &CreditStatus{Unlimited: true, IsSubscriber: true}, nil
	}
	balance, err := s.ledger.BalanceOf(ctx, accountID)
	if err != nil {
		s.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to read balance")
		return nil, err
	}
	return &CreditStatus{Balance: balance}, nil
}

func (s *meteringService) Credit(ctx context.Context, accountID string, amount int64, source model.Source, refType, refID, idempotencyKey string, metadata map[string]string) (int64, bool, error) {
	if err := validateMovement(amount, source, idempotencyKey); err != nil {
		return 0, false, err
	}
	balance, replayed, err := s.ledger.Append(ctx, model.LedgerEntry{
		AccountID:      accountID,
		Amount:         amount,
		Source:         source,
		RefType:        refType,
		RefID:          refID,
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("account_id", accountID).Str("source", string(source)).Msg("Failed to append credit")
		return 0, false, fmt.Errorf("credit account %s: %w", accountID, err)
	}
	if replayed {
		s.logger.Info().Str("account_id", accountID).Str("idempotency_key", idempotencyKey).Msg("Credit replayed, no new entry")
	}
	return balance, replayed, nil
}

func (s *meteringService) Debit(ctx context.Context, accountID string, amount int64, source model.Source, refType, refID, idempotencyKey string, metadata map[string]string) (*DebitResult, error) {
	if err := validateMovement(amount, source, idempotencyKey); err != nil {
		return nil, err
	}

	// Subscribers never consume ledger credits for usage. Admin-adjustment
	// debits land regardless: an operator correction must not be silenced
	// by the override.
	if source == model.SourceUsage {
		active, err := s.subs.IsActiveSubscriber(ctx, accountID)
		if err != nil {
			s.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to check subscription status")
			return nil, err
		}
		if active {
			balance, err := s.ledger.BalanceOf(ctx, accountID)
			if err != nil {
				return nil, err
			}
			return &DebitResult{Balance: balance, Subscriber: true}, nil
		}
	}

	balance, replayed, err := s.ledger.Append(ctx, model.LedgerEntry{
		AccountID:      accountID,
		Amount:         -amount,
		Source:         source,
		RefType:        refType,
		RefID:          refID,
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
	})
	if err != nil {
		var insufficient *repository.InsufficientBalanceError
		if errors.As(err, &insufficient) {
			return nil, &InsufficientCreditsError{Balance: insufficient.Balance, Requested: amount}
		}
		s.logger.Error().Err(err).Str("account_id", accountID).Str("source", string(source)).Msg("Failed to append debit")
		return nil, fmt.Errorf("debit account %s: %w", accountID, err)
	}
	return &DebitResult{Balance: balance, Replayed: replayed}, nil
}

func (s *meteringService) Entries(ctx context.Context, accountID string, limit int) ([]model.LedgerEntry, error) {
	return s.ledger.EntriesOf(ctx, accountID, limit)
}

func validateMovement(amount int64, source model.Source, idempotencyKey string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if !source.Valid() {
		return ErrInvalidSource
	}
	if idempotencyKey == "" {
		return ErrMissingIdempotencyKey
	}
	return nil
}
