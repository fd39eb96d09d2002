package httpserver

import (
	"net/http"

	"escrow-service/internal/escrow"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes the override and platform configuration endpoints.
// Routes are mounted behind AuthMiddleware plus AdminOnly; the service
// layer re-checks identity against the user row.
type AdminHandler struct {
	escrow *escrow.Service
}

func NewAdminHandler(escrowService *escrow.Service) *AdminHandler {
	return &AdminHandler{escrow: escrowService}
}

// GetPlatform returns the current platform configuration together with
// the recovery windows the service was started with. Mounted in the
// authenticated group so clients can see the fee rate and pause state.
func (h *AdminHandler) GetPlatform(c *gin.Context) {
	cfg, err := h.escrow.GetConfig(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	w := h.escrow.Windows()
	c.JSON(http.StatusOK, gin.H{
		"fee_bps":                  cfg.FeeBps,
		"paused":                   cfg.Paused,
		"treasury":                 cfg.Treasury,
		"owner":                    cfg.Owner,
		"emergency_window_hours":   int(w.Emergency.Hours()),
		"abandonment_window_hours": int(w.Abandonment.Hours()),
	})
}

type resolveDisputeRequest struct {
	Resolution      string `json:"resolution" binding:"required"`
	ResolutionTxID  string `json:"resolution_tx_id"`
	FavorFreelancer bool   `json:"favor_freelancer"`
}

func (h *AdminHandler) ResolveDispute(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dispute id"})
		return
	}
	var req resolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = h.escrow.AdminResolveDispute(c.Request.Context(), principalFrom(c), id,
		req.Resolution, req.ResolutionTxID, req.FavorFreelancer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute_id": id, "resolved": true})
}

type resetDisputeRequest struct {
	Resolution string `json:"resolution"`
}

func (h *AdminHandler) ResetDispute(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dispute id"})
		return
	}
	var req resetDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.escrow.AdminResetDispute(c.Request.Context(), principalFrom(c), id, req.Resolution); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute_id": id, "reset": true})
}

func (h *AdminHandler) ResetMilestone(c *gin.Context) {
	id, num, err := pathMilestone(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.escrow.AdminResetMilestone(c.Request.Context(), principalFrom(c), id, num); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": id, "milestone": num, "reset": true})
}

func (h *AdminHandler) ForceRelease(c *gin.Context) {
	id, num, err := pathMilestone(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req releaseRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	net, err := h.escrow.ForceReleaseMilestone(c.Request.Context(), principalFrom(c), id, num, req.ReleaseTxID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": id, "milestone": num, "net_released": net})
}

func (h *AdminHandler) ForceRefund(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	refunded, err := h.escrow.ForceRefundProject(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": id, "refunded": refunded})
}

type setFeeRateRequest struct {
	FeeBps *int `json:"fee_bps" binding:"required"`
}

func (h *AdminHandler) SetFeeRate(c *gin.Context) {
	var req setFeeRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.escrow.SetFeeRate(c.Request.Context(), principalFrom(c), *req.FeeBps); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fee_bps": *req.FeeBps})
}

type setPausedRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

func (h *AdminHandler) SetPaused(c *gin.Context) {
	var req setPausedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.escrow.SetPaused(c.Request.Context(), principalFrom(c), *req.Paused); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": *req.Paused})
}

type setTreasuryRequest struct {
	Treasury string `json:"treasury" binding:"required"`
}

func (h *AdminHandler) SetTreasury(c *gin.Context) {
	var req setTreasuryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.escrow.SetTreasury(c.Request.Context(), principalFrom(c), req.Treasury); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"treasury": req.Treasury})
}

type proposeOwnershipRequest struct {
	NewOwner string `json:"new_owner" binding:"required"`
}

func (h *AdminHandler) ProposeOwnership(c *gin.Context) {
	var req proposeOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.escrow.ProposeOwnership(c.Request.Context(), principalFrom(c), req.NewOwner); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposed_owner": req.NewOwner})
}

func (h *AdminHandler) AcceptOwnership(c *gin.Context) {
	if err := h.escrow.AcceptOwnership(c.Request.Context(), principalFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": principalFrom(c)})
}

func (h *AdminHandler) SuspendUser(c *gin.Context) {
	principal := c.Param("principal")
	if err := h.escrow.SuspendUser(c.Request.Context(), principalFrom(c), principal); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": principal, "suspended": true})
}

func (h *AdminHandler) ReinstateUser(c *gin.Context) {
	principal := c.Param("principal")
	if err := h.escrow.ReinstateUser(c.Request.Context(), principalFrom(c), principal); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": principal, "suspended": false})
}
