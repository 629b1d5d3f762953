package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/http/response"
	"github.com/yungbote/genflow-backend/internal/platform/dbctx"
	"github.com/yungbote/genflow-backend/internal/services"
)

type CreditsHandler struct {
	ledger    services.CreditLedger
	admission services.AdmissionController
}

func NewCreditsHandler(ledger services.CreditLedger, admission services.AdmissionController) *CreditsHandler {
	return &CreditsHandler{ledger: ledger, admission: admission}
}

// GET /api/credits
func (h *CreditsHandler) Summary(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	snap, err := h.admission.Snapshot(dbctx.Context{Ctx: c.Request.Context()}, ownerID)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"creditsBalance": snap.Balance,
		"current":        snap.Current,
		"maximum":        snap.Maximum,
		"plan":           snap.Plan,
	})
}

// GET /api/credits/events
func (h *CreditsHandler) Events(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	limit := defaultListLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}
	events, err := h.ledger.History(dbctx.Context{Ctx: c.Request.Context()}, ownerID, limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	if events == nil {
		events = []*types.UsageEvent{}
	}
	response.RespondOK(c, gin.H{"events": events})
}
