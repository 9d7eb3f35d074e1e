package handler

import (
	"net/http"

	"floraledger/internal/config"

	"github.com/gin-gonic/gin"
)

// SetupRouter wires the webhook, the admin API and the health check.
func SetupRouter(h *Handler, wh *WebhookHandler, cfg *config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	r.GET(cfg.Telegram.WebhookPath, wh.Register)
	r.POST(cfg.Telegram.WebhookPath, wh.Receive)

	api := r.Group("/api/v1")
	api.Use(AdminAuthMiddleware(cfg.App.AdminToken))
	{
		transaction := api.Group("/transaction")
		{
			transaction.GET("/detail", h.GetTransaction)
			transaction.GET("/last", h.GetLastTransaction)
			transaction.GET("/history", h.GetTransactionHistory)
		}

		report := api.Group("/report")
		{
			report.GET("/closure", h.GetClosureReport)
		}

		inventory := api.Group("/inventory")
		{
			inventory.GET("/item", h.GetInventoryItem)
			inventory.POST("/update", h.UpdateInventory)
			inventory.POST("/synonym", h.AddSynonym)
			inventory.GET("/issues", h.ListInventoryIssues)
			inventory.GET("/losses", h.ListInventoryLosses)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
