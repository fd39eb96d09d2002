package httpserver

import (
	"net/http"
	"strconv"

	"escrow-service/internal/escrow"
	"escrow-service/internal/workflow"

	"github.com/gin-gonic/gin"
)

// EscrowHandler exposes the ledger operations: project creation,
// milestone completion and release, refunds, and disputes.
type EscrowHandler struct {
	escrow   *escrow.Service
	workflow *workflow.Service
}

func NewEscrowHandler(escrowService *escrow.Service, workflowService *workflow.Service) *EscrowHandler {
	return &EscrowHandler{escrow: escrowService, workflow: workflowService}
}

type createProjectRequest struct {
	Freelancer string  `json:"freelancer" binding:"required"`
	Amounts    []int64 `json:"amounts" binding:"required"`
	TokenType  string  `json:"token_type" binding:"required"`
	EscrowTxID string  `json:"escrow_tx_id"`
	OnChainID  string  `json:"on_chain_id"`
}

func (h *EscrowHandler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.escrow.CreateProject(c.Request.Context(), escrow.CreateProjectParams{
		Client:     principalFrom(c),
		Freelancer: req.Freelancer,
		Amounts:    req.Amounts,
		TokenType:  req.TokenType,
		EscrowTxID: req.EscrowTxID,
		OnChainID:  req.OnChainID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *EscrowHandler) GetProject(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	p, err := h.workflow.GetProject(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *EscrowHandler) ListProjects(c *gin.Context) {
	projects, err := h.workflow.ListProjects(c.Request.Context(), principalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (h *EscrowHandler) GetProjectBudget(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	budget, err := h.workflow.ProjectBudget(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": id, "budget": budget})
}

func (h *EscrowHandler) CompleteMilestone(c *gin.Context) {
	id, num, err := pathMilestone(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.escrow.CompleteMilestone(c.Request.Context(), principalFrom(c), id, num); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": id, "milestone": num, "complete": true})
}

type releaseRequest struct {
	ReleaseTxID string `json:"release_tx_id"`
}

func (h *EscrowHandler) ReleaseMilestone(c *gin.Context) {
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

	net, err := h.escrow.ReleaseMilestone(c.Request.Context(), principalFrom(c), id, num, req.ReleaseTxID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": id, "milestone": num, "net_released": net})
}

func (h *EscrowHandler) RequestFullRefund(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	refunded, err := h.escrow.RequestFullRefund(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": id, "refunded": refunded})
}

func (h *EscrowHandler) EmergencyRefund(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	refunded, err := h.escrow.EmergencyRefund(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": id, "refunded": refunded})
}

type fileDisputeRequest struct {
	Reason   string `json:"reason" binding:"required"`
	Evidence string `json:"evidence"`
}

func (h *EscrowHandler) FileDispute(c *gin.Context) {
	id, num, err := pathMilestone(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req fileDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := h.escrow.FileDispute(c.Request.Context(), principalFrom(c), id, num, req.Reason, req.Evidence)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func pathID(c *gin.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}

func pathMilestone(c *gin.Context) (int64, int, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return 0, 0, errInvalidProjectID
	}
	num, err := strconv.Atoi(c.Param("num"))
	if err != nil {
		return 0, 0, errInvalidMilestoneNum
	}
	return id, num, nil
}
