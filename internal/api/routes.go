package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	infragin "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/gin"
)

// SetupRoutes configures all API routes.
// The model listing is public; run endpoints are protected with JWT.
func SetupRoutes(
	router *gin.Engine, runHandler *RunHandler, gmpeHandler *GMPEHandler, gatherer prometheus.Gatherer, jwtSecret string,
) {
	public, protected := infragin.SetupAPIRoutesWithPublic(router, jwtSecret)

	public.GET("/gmpes", gmpeHandler.ListGMPEs)

	protected.POST("/runs", runHandler.SubmitRun)
	protected.GET("/runs/:id", runHandler.GetRun)
	protected.POST("/runs/:id/cancel", runHandler.CancelRun)
	protected.DELETE("/runs/:id", runHandler.CancelRun)
	protected.GET("/sessions/:id", runHandler.GetSession)

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
