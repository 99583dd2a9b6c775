package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DemoCookieName carries the signed demo-search session.
const DemoCookieName = "demo_session"

// CreditsHandler exposes metering: credit status and usage consumption.
type CreditsHandler struct {
	metering service.MeteringService
	demo     *service.DemoService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewCreditsHandler creates a new CreditsHandler.
func NewCreditsHandler(metering service.MeteringService, demo *service.DemoService, validate *validator.Validate, logger zerolog.Logger) *CreditsHandler {
	return &CreditsHandler{metering: metering, demo: demo, validate: validate, logger: logger}
}

// RegisterRoutes registers the credits endpoints.
func (h *CreditsHandler) RegisterRoutes(mux *http.ServeMux, optionalAuth func(http.Handler) http.Handler) {
	mux.Handle("GET /credits", optionalAuth(http.HandlerFunc(h.Status)))
	mux.Handle("POST /credits/consume", optionalAuth(http.HandlerFunc(h.Consume)))
}

// Status godoc
// @Summary Get credit status for the caller
// @Description Returns the ledger balance, or the unlimited marker for active subscribers. Anonymous callers also get their demo-search quota.
// @Tags credits
// @Produce json
// @Success 200 {object} dto.CreditStatusResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /credits [get]
func (h *CreditsHandler) Status(w http.ResponseWriter, r *http.Request) {
	acct, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no_identity", "no account identity")
		return
	}
	status, err := h.metering.Status(r.Context(), acct.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("account_id", acct.ID).Msg("Failed to fetch credit status")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to fetch credit status")
		return
	}

	resp := dto.CreditStatusResponse{
		Unlimited:    status.Unlimited,
		IsSubscriber: status.IsSubscriber,
	}
	if !status.Unlimited {
		balance := status.Balance
		resp.Balance = &balance
	}
	if acct.Anonymous && !status.Unlimited {
		state := h.demo.Check(demoCookie(r))
		resp.Demo = &dto.DemoQuotaDTO{Used: state.Used, Remaining: state.Remaining, Limit: h.demo.Limit()}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Consume godoc
// @Summary Consume credits for a metered action
// @Description Debits the caller's ledger. Subscribers are a no-op. Anonymous callers whose balance cannot cover the request fall back to the demo-search quota.
// @Tags credits
// @Accept json
// @Produce json
// @Param request body dto.ConsumeRequest true "Consumption request"
// @Success 200 {object} dto.ConsumeResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 402 {object} dto.ErrorResponse "insufficient_credits or demo_quota_exhausted"
// @Router /credits/consume [post]
func (h *CreditsHandler) Consume(w http.ResponseWriter, r *http.Request) {
	acct, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no_identity", "no account identity")
		return
	}
	var req dto.ConsumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	// A minted key still dedupes internal retries of this request; callers
	// that want retry safety across requests must send their own.
	key := req.IdempotencyKey
	if key == "" {
		key = "srv_" + uuid.NewString()
	}

	res, err := h.metering.Debit(r.Context(), acct.ID, req.Amount, model.SourceUsage, req.RefType, req.RefID, key, nil)
	if err != nil {
		var insufficient *service.InsufficientCreditsError
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be positive")
		case errors.As(err, &insufficient):
			if acct.Anonymous {
				h.consumeDemo(w, r, insufficient)
				return
			}
			writeJSON(w, http.StatusPaymentRequired, dto.ErrorResponse{
				Code:      "insufficient_credits",
				Balance:   &insufficient.Balance,
				Requested: &insufficient.Requested,
			})
		default:
			h.logger.Error().Err(err).Str("account_id", acct.ID).Msg("Failed to consume credits")
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to consume credits")
		}
		return
	}

	balance := res.Balance
	writeJSON(w, http.StatusOK, dto.ConsumeResponse{
		Balance:    &balance,
		Subscriber: res.Subscriber,
		Replayed:   res.Replayed,
	})
}

// consumeDemo handles the anonymous fallback when the ledger cannot cover
// the request: one demo search is consumed from the cookie quota instead.
// No ledger entry is written on this path.
func (h *CreditsHandler) consumeDemo(w http.ResponseWriter, r *http.Request, shortfall *service.InsufficientCreditsError) {
	token, state, err := h.demo.Consume(demoCookie(r))
	if err != nil {
		if errors.Is(err, service.ErrDemoQuotaExhausted) {
			writeJSON(w, http.StatusPaymentRequired, dto.ErrorResponse{
				Code:      "demo_quota_exhausted",
				Balance:   &shortfall.Balance,
				Requested: &shortfall.Requested,
			})
			return
		}
		h.logger.Error().Err(err).Msg("Failed to consume demo quota")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to consume demo quota")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     DemoCookieName,
		Value:    token,
		Path:     "/",
		Expires:  state.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, dto.ConsumeResponse{
		Demo: &dto.DemoQuotaDTO{Used: state.Used, Remaining: state.Remaining, Limit: h.demo.Limit()},
	})
}

func demoCookie(r *http.Request) string {
	if c, err := r.Cookie(DemoCookieName); err == nil {
		return c.Value
	}
	return ""
}
