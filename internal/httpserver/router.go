package httpserver

import (
	"net/http"

	"escrow-service/internal/auth"
	"escrow-service/pkg/mq"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps bundles everything the router mounts.
type Deps struct {
	Logger        *zap.Logger
	DB            *pgxpool.Pool
	Publisher     *mq.Publisher
	Auth          *auth.Service
	AuthHandler   *AuthHandler
	Escrow        *EscrowHandler
	Workflow      *WorkflowHandler
	Admin         *AdminHandler
	Notifications *NotificationHandler
}

// NewRouter builds the gin engine with health, metrics and API routes.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(LoggingMiddleware(d.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/readyz", func(c *gin.Context) {
		if err := d.DB.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		if d.Publisher != nil && !d.Publisher.IsConnected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	api.POST("/auth/wallet-login", d.AuthHandler.WalletLogin)
	api.POST("/auth/admin-login", d.AuthHandler.AdminLogin)

	authed := api.Group("")
	authed.Use(AuthMiddleware(d.Auth))
	{
		authed.POST("/projects", d.Escrow.CreateProject)
		authed.GET("/projects", d.Escrow.ListProjects)
		authed.GET("/projects/:id", d.Escrow.GetProject)
		authed.GET("/projects/:id/budget", d.Escrow.GetProjectBudget)
		authed.POST("/projects/:id/milestones/:num/complete", d.Escrow.CompleteMilestone)
		authed.POST("/projects/:id/milestones/:num/release", d.Escrow.ReleaseMilestone)
		authed.POST("/projects/:id/milestones/:num/submit", d.Workflow.SubmitMilestone)
		authed.POST("/projects/:id/milestones/:num/disputes", d.Escrow.FileDispute)
		authed.POST("/projects/:id/refund", d.Escrow.RequestFullRefund)
		authed.POST("/projects/:id/emergency-refund", d.Escrow.EmergencyRefund)

		authed.GET("/submissions/:id", d.Workflow.GetSubmission)
		authed.POST("/submissions/:id/approve", d.Workflow.ApproveSubmission)
		authed.POST("/submissions/:id/reject", d.Workflow.RejectSubmission)

		authed.GET("/notifications", d.Notifications.List)
		authed.POST("/notifications/:id/read", d.Notifications.MarkRead)

		authed.GET("/platform", d.Admin.GetPlatform)
		// Ownership acceptance is keyed to the proposed principal, not the
		// admin flag.
		authed.POST("/platform/ownership/accept", d.Admin.AcceptOwnership)
	}

	admin := authed.Group("/admin")
	admin.Use(AdminOnly())
	{
		admin.POST("/disputes/:id/resolve", d.Admin.ResolveDispute)
		admin.POST("/disputes/:id/reset", d.Admin.ResetDispute)
		admin.POST("/projects/:id/milestones/:num/reset", d.Admin.ResetMilestone)
		admin.POST("/projects/:id/milestones/:num/force-release", d.Admin.ForceRelease)
		admin.POST("/projects/:id/force-refund", d.Admin.ForceRefund)
		admin.PUT("/platform/fee-rate", d.Admin.SetFeeRate)
		admin.PUT("/platform/paused", d.Admin.SetPaused)
		admin.PUT("/platform/treasury", d.Admin.SetTreasury)
		admin.POST("/platform/ownership/propose", d.Admin.ProposeOwnership)
		admin.POST("/users/:principal/suspend", d.Admin.SuspendUser)
		admin.POST("/users/:principal/reinstate", d.Admin.ReinstateUser)
	}

	return r
}
