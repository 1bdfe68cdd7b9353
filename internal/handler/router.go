package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/middleware"
	"github.com/noah-isme/scholarship-api/internal/models"
)

// Routes bundles the handlers and guards mounted under the API prefix.
type Routes struct {
	Auth         gin.HandlerFunc
	BulkThrottle gin.HandlerFunc

	Applications *ApplicationHandler
	Stats        *StatsHandler
	Bulk         *BulkHandler
	Offerings    *OfferingHandler
	Interviews   *InterviewHandler
	Metrics      *MetricsHandler
}

// Register mounts probes at the root and the engine endpoints under prefix.
func Register(r *gin.Engine, prefix string, routes Routes) {
	r.GET("/health", routes.Metrics.Health)
	r.GET("/ready", routes.Metrics.Ready)
	r.GET("/metrics", routes.Metrics.Prometheus)

	api := r.Group(prefix, middleware.WithResponseMeta())
	if routes.Auth != nil {
		api.Use(routes.Auth)
	}

	staff := middleware.Staff()
	reviewers := middleware.RequireRoles(models.RoleReviewer, models.RoleOfficer, models.RoleAdmin)
	officers := middleware.RequireRoles(models.RoleOfficer, models.RoleAdmin)
	intake := middleware.RequireRoles(models.RoleOfficer, models.RoleAdmin, models.RoleSystem)
	admins := middleware.Administrators()

	apps := api.Group("/applications")
	apps.GET("", staff, routes.Applications.List)
	apps.POST("", intake, routes.Applications.Submit)
	apps.GET("/stats", staff, routes.Stats.Get)
	apps.GET("/:id", staff, routes.Applications.Get)
	apps.DELETE("/:id", admins, routes.Applications.Delete)
	apps.PUT("/:id/snapshot", intake, routes.Applications.UpdateSnapshot)
	apps.POST("/:id/review", reviewers, routes.Applications.Review)
	apps.POST("/:id/override", admins, routes.Applications.Override)
	apps.GET("/:id/audit", staff, routes.Applications.Audit)
	apps.GET("/:id/score", staff, routes.Applications.Score)
	apps.GET("/:id/interviews", staff, routes.Interviews.ListForApplication)

	bulk := apps.Group("/bulk", officers)
	if routes.BulkThrottle != nil {
		bulk.Use(routes.BulkThrottle)
	}
	bulk.POST("", routes.Bulk.Apply)
	bulk.POST("/jobs", routes.Bulk.Enqueue)
	bulk.GET("/jobs/:id", routes.Bulk.Job)

	offerings := api.Group("/offerings")
	offerings.GET("", staff, routes.Offerings.List)
	offerings.POST("", officers, routes.Offerings.Create)
	offerings.GET("/:id", staff, routes.Offerings.Get)
	offerings.PUT("/:id", officers, routes.Offerings.Update)
	offerings.GET("/:id/allocation", staff, routes.Offerings.Allocation)
	offerings.POST("/:id/approve", admins, routes.Offerings.Approve)
	offerings.POST("/:id/status", officers, routes.Offerings.ChangeStatus)
	offerings.POST("/:id/archive", admins, routes.Offerings.Archive)

	interviews := api.Group("/interviews", reviewers)
	interviews.POST("", routes.Interviews.Book)
	interviews.GET("/:id", routes.Interviews.Get)
	interviews.POST("/:id/confirm", routes.Interviews.Confirm)
	interviews.POST("/:id/complete", routes.Interviews.Complete)
	interviews.POST("/:id/cancel", routes.Interviews.Cancel)
	interviews.POST("/:id/no-show", routes.Interviews.NoShow)
	interviews.POST("/:id/reschedule", routes.Interviews.Reschedule)
	interviews.POST("/:id/result", routes.Interviews.Result)
	interviews.POST("/:id/annotations", routes.Interviews.Annotate)
}
