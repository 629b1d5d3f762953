package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/genflow-backend/internal/http/response"
	"github.com/yungbote/genflow-backend/internal/services"
)

type AdminHandler struct {
	reaper services.StuckJobReaper
}

func NewAdminHandler(reaper services.StuckJobReaper) *AdminHandler {
	return &AdminHandler{reaper: reaper}
}

// POST /api/admin/reap
func (h *AdminHandler) Reap(c *gin.Context) {
	res, err := h.reaper.Reap(c.Request.Context())
	if err != nil && res.ReapedCount == 0 {
		respondErr(c, err)
		return
	}
	if err != nil {
		_ = c.Error(err)
	}
	response.RespondOK(c, res)
}
