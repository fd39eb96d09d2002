package httpserver

import (
	"net/http"

	"escrow-service/internal/workflow"

	"github.com/gin-gonic/gin"
)

// WorkflowHandler exposes the submission and review operations.
type WorkflowHandler struct {
	workflow *workflow.Service
}

func NewWorkflowHandler(workflowService *workflow.Service) *WorkflowHandler {
	return &WorkflowHandler{workflow: workflowService}
}

type submitMilestoneRequest struct {
	Deliverable    string `json:"deliverable" binding:"required"`
	Description    string `json:"description"`
	CompletionTxID string `json:"completion_tx_id"`
}

func (h *WorkflowHandler) SubmitMilestone(c *gin.Context) {
	id, num, err := pathMilestone(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req submitMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.workflow.SubmitMilestone(c.Request.Context(), principalFrom(c), id, num,
		req.Deliverable, req.Description, req.CompletionTxID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *WorkflowHandler) GetSubmission(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission id"})
		return
	}

	sub, err := h.workflow.GetSubmission(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

type approveSubmissionRequest struct {
	ReleaseTxID string `json:"release_tx_id"`
}

func (h *WorkflowHandler) ApproveSubmission(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission id"})
		return
	}
	var req approveSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	net, err := h.workflow.ApproveSubmission(c.Request.Context(), principalFrom(c), id, req.ReleaseTxID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission_id": id, "net_released": net})
}

type rejectSubmissionRequest struct {
	Feedback string `json:"feedback"`
}

func (h *WorkflowHandler) RejectSubmission(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission id"})
		return
	}
	var req rejectSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.workflow.RejectSubmission(c.Request.Context(), principalFrom(c), id, req.Feedback); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission_id": id, "rejected": true})
}
