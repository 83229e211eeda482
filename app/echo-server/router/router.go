package router

import (
	"studyCafeCRM/internal/middleware"
	"studyCafeCRM/internal/rest"

	"github.com/labstack/echo/v4"
)

func SetupSegmentRoutes(api *echo.Group, handler *rest.SegmentHandler, authRequired echo.MiddlewareFunc) {
	branches := api.Group("/branches/:branchId", authRequired)

	branches.GET("/segments", handler.GetSegments)
	branches.POST("/segments/snapshot", handler.Snapshot, middleware.AdminOnly())
	branches.GET("/customers/:phone/profile", handler.GetProfile)
}

func SetupFlowRoutes(api *echo.Group, handler *rest.FlowHandler, authRequired echo.MiddlewareFunc) {
	flows := api.Group("/automation/flows")

	flows.POST("", handler.CreateFlow, authRequired)
	flows.GET("/:id", handler.GetFlow, authRequired)
	flows.PUT("/:id", handler.UpdateFlow, authRequired)
	flows.POST("/:id/activate", handler.ActivateFlow, authRequired)
	flows.POST("/:id/deactivate", handler.DeactivateFlow, authRequired)
	flows.GET("/:id/targets", handler.PreviewTargets, authRequired)
}

// SetupWorkerRoutes registers the worker-facing routes. They share the flow
// prefix but authenticate with the worker secret instead of a JWT.
func SetupWorkerRoutes(api *echo.Group, handler *rest.WorkerHandler, workerAuth echo.MiddlewareFunc) {
	flows := api.Group("/automation/flows")

	flows.GET("/due", handler.DueFlows, workerAuth)
	flows.POST("/dispatch-due", handler.DispatchDue, workerAuth)
	flows.POST("/:id/dispatch", handler.Dispatch, workerAuth)
	flows.POST("/:id/callback", handler.Callback, workerAuth)
}
