package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// AdminHandler exposes the privileged ledger adjustment gate and the audit
// entry listing.
type AdminHandler struct {
	admin    service.AdminService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin service.AdminService, validate *validator.Validate, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, validate: validate, logger: logger}
}

// RegisterRoutes registers the admin endpoints behind auth + role checks.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, auth, adminOnly func(http.Handler) http.Handler) {
	mux.Handle("POST /admin/credits/adjust", auth(adminOnly(http.HandlerFunc(h.Adjust))))
	mux.Handle("GET /admin/credits/{account_id}/entries", auth(adminOnly(http.HandlerFunc(h.Entries))))
}

// Adjust godoc
// @Summary Apply an operator credit adjustment
// @Description Adds or deducts credits on the target account. Reason is mandatory and stored in the ledger entry metadata.
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdjustmentRequest true "Adjustment"
// @Success 200 {object} dto.AdjustmentResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {string} string "forbidden"
// @Failure 409 {object} dto.ErrorResponse "insufficient_credits"
// @Router /admin/credits/adjust [post]
func (h *AdminHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	actorID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || actorID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing operator identity")
		return
	}
	var req dto.AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	balance, err := h.admin.Adjust(r.Context(), actorID, req.Action, req.Amount, req.TargetAccountID, req.Reason)
	if err != nil {
		var insufficient *service.InsufficientCreditsError
		switch {
		case errors.Is(err, service.ErrInvalidAction):
			writeError(w, http.StatusBadRequest, "invalid_action", "action must be add or deduct")
		case errors.Is(err, service.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be positive")
		case errors.Is(err, service.ErrReasonRequired):
			writeError(w, http.StatusBadRequest, "reason_required", "reason is mandatory")
		case errors.As(err, &insufficient):
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{
				Code:      "insufficient_credits",
				Balance:   &insufficient.Balance,
				Requested: &insufficient.Requested,
			})
		default:
			h.logger.Error().Err(err).Str("actor_id", actorID).Str("target", req.TargetAccountID).Msg("Failed to apply adjustment")
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to apply adjustment")
		}
		return
	}
	writeJSON(w, http.StatusOK, dto.AdjustmentResponse{TargetAccountID: req.TargetAccountID, Balance: balance})
}

// Entries godoc
// @Summary List recent ledger entries for an account
// @Description Audit and debugging view; newest first.
// @Tags admin
// @Produce json
// @Param account_id path string true "Account ID"
// @Param limit query int false "Max entries (default 50, cap 200)"
// @Success 200 {array} dto.LedgerEntryDTO
// @Failure 403 {string} string "forbidden"
// @Router /admin/credits/{account_id}/entries [get]
func (h *AdminHandler) Entries(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("account_id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "invalid_payload", "missing account id")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_payload", "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > 200 {
		limit = 200
	}

	entries, err := h.admin.Entries(r.Context(), accountID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to list ledger entries")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list entries")
		return
	}
	out := make([]dto.LedgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.LedgerEntryDTO{
			ID:             e.ID,
			AccountID:      e.AccountID,
			Amount:         e.Amount,
			Source:         string(e.Source),
			RefType:        e.RefType,
			RefID:          e.RefID,
			IdempotencyKey: e.IdempotencyKey,
			Metadata:       e.Metadata,
			CreatedAt:      e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
