package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/http/response"
	"github.com/yungbote/genflow-backend/internal/platform/apierr"
)

// mapError translates domain errors into the API envelope.
func mapError(err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	var adm *types.AdmissionError
	if errors.As(err, &adm) {
		return apierr.New(http.StatusTooManyRequests, "admission_limit_reached", err).
			WithDetails(map[string]any{"current": adm.Current, "maximum": adm.Maximum})
	}
	var bal *types.InsufficientBalanceError
	if errors.As(err, &bal) {
		return apierr.New(http.StatusPaymentRequired, "insufficient_balance", err).
			WithDetails(map[string]any{"balance": bal.Balance, "required": bal.Required})
	}
	switch {
	case errors.Is(err, types.ErrInsufficientBalance):
		return apierr.New(http.StatusPaymentRequired, "insufficient_balance", err)
	case errors.Is(err, types.ErrAdmissionLimitReached):
		return apierr.New(http.StatusTooManyRequests, "admission_limit_reached", err)
	case errors.Is(err, types.ErrUnknownFlow):
		return apierr.New(http.StatusNotFound, "unknown_flow", err)
	case errors.Is(err, types.ErrNotFound):
		return apierr.New(http.StatusNotFound, "not_found", err)
	case errors.Is(err, types.ErrForbidden):
		return apierr.New(http.StatusForbidden, "forbidden", err)
	case errors.Is(err, types.ErrInvalidArgument):
		return apierr.New(http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, types.ErrDispatchFailure):
		return apierr.New(http.StatusBadGateway, "dispatch_failed", errors.New("generation could not be started; credits refunded"))
	case errors.Is(err, types.ErrEngineUnreachable):
		return apierr.New(http.StatusBadGateway, "engine_unreachable", err)
	default:
		return apierr.New(http.StatusInternalServerError, "internal", errors.New("internal error"))
	}
}

func respondErr(c *gin.Context, err error) {
	ae := mapError(err)
	if ae.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.RespondAPIError(c, ae)
}
