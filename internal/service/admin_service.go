package service

import (
	"context"

	"app/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	AdminActionAdd    = "add"
	AdminActionDeduct = "deduct"
)

// AdminService performs privileged ledger adjustments on behalf of an
// operator. Role enforcement happens in the admin middleware before a
// request reaches this service; every adjustment records the acting
// operator and a mandatory reason in the entry metadata.
type AdminService interface {
	// Adjust applies an add/deduct movement to the target account and
	// returns the resulting balance.
	Adjust(ctx context.Context, actorID, action string, amount int64, targetAccountID, reason string) (int64, error)
	Entries(ctx context.Context, accountID string, limit int) ([]model.LedgerEntry, error)
}

type adminService struct {
	metering MeteringService
	logger   zerolog.Logger
}

// NewAdminService creates an AdminService with a scoped logger.
func NewAdminService(metering MeteringService, logger zerolog.Logger) AdminService {
	return &adminService{
		metering: metering,
		logger:   logger.With().Str("service", "AdminService").Logger(),
	}
}

// Adjust generates a fresh idempotency key per invocation: admin actions are
// each a new intentional movement, never a safe retry of a previous one.
func (s *adminService) Adjust(ctx context.Context, actorID, action string, amount int64, targetAccountID, reason string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if reason == "" {
		return 0, ErrReasonRequired
	}

	key := "admin_" + uuid.NewString()
	metadata := map[string]string{
		"reason":   reason,
		"actor_id": actorID,
	}

	switch action {
	case AdminActionAdd:
		balance, _, err := s.metering.Credit(ctx, targetAccountID, amount, model.SourceAdminAdjustment, "admin", actorID, key, metadata)
		if err != nil {
			return 0, err
		}
		s.logger.Info().Str("actor_id", actorID).Str("target", targetAccountID).Int64("amount", amount).Msg("Admin credit applied")
		return balance, nil
	case AdminActionDeduct:
		res, err := s.metering.Debit(ctx, targetAccountID, amount, model.SourceAdminAdjustment, "admin", actorID, key, metadata)
		if err != nil {
			return 0, err
		}
		s.logger.Info().Str("actor_id", actorID).Str("target", targetAccountID).Int64("amount", amount).Msg("Admin deduct applied")
		return res.Balance, nil
	default:
		return 0, ErrInvalidAction
	}
}

func (s *adminService) Entries(ctx context.Context, accountID string, limit int) ([]model.LedgerEntry, error) {
	return s.metering.Entries(ctx, accountID, limit)
}
