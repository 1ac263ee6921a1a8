package handler

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/journal", h.GetJournal)
			account.GET("/chain-balance", h.GetChainBalance)
		}

		invoice := api.Group("/invoice")
		{
			invoice.GET("/list", h.ListInvoices)
			invoice.GET("/detail", h.GetInvoice)
			invoice.POST("/cancel", h.CancelInvoice)
		}

		topup := api.Group("/topup")
		{
			topup.POST("/execute", h.TopUp)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
