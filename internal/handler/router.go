package handler

import (
	"net/http"

	"yieldengine/internal/service"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(svcs *service.Services) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(PrincipalMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(svcs)

	api := r.Group("/api/v1")
	{
		vault := api.Group("/vault")
		{
			vault.GET("/balance", h.GetBalance)
			vault.GET("/entries", h.ListEntries)
			vault.GET("/program", h.ListProgramVaults)
			vault.GET("/transfer", h.GetTransfer)
			vault.POST("/credit", h.Credit)
			vault.POST("/fund", h.Fund)
		}

		stake := api.Group("/stake")
		{
			stake.POST("/deposit", h.Deposit)
			stake.POST("/withdraw", h.Withdraw)
			stake.POST("/claim", h.ClaimRewards)
			stake.GET("/detail", h.GetStake)
			stake.GET("/policy", h.GetStakingPolicy)
			stake.POST("/policy", h.UpdateStakingPolicy)
			stake.POST("/penalty-schedule", h.ReplacePenaltySchedule)
		}

		spin := api.Group("/spin")
		{
			spin.POST("/execute", h.Spin)
			spin.POST("/fallback", h.ClaimFallbackYield)
			spin.POST("/booster/lucky-charm", h.ActivateLuckyCharm)
			spin.POST("/booster/amplifier", h.ActivateYieldAmplifier)
			spin.POST("/booster/shield", h.ActivateChadShield)
			spin.GET("/profile", h.GetSpinProfile)
			spin.GET("/records", h.ListSpinRecords)
			spin.GET("/policy", h.GetSpinPolicy)
			spin.POST("/policy", h.UpdateSpinPolicy)
		}

		pool := api.Group("/pool")
		{
			pool.POST("/distribute", h.Distribute)
			pool.POST("/allocations", h.UpdateAllocations)
			pool.POST("/emergency-withdraw", h.EmergencyWithdraw)
			pool.GET("/detail", h.GetPool)
			pool.GET("/distributions", h.ListDistributions)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
