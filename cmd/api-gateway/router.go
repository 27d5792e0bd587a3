package main

import (
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/scholar-admissions-api/internal/handler"
	"github.com/noah-isme/scholar-admissions-api/internal/middleware"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
	"github.com/noah-isme/scholar-admissions-api/pkg/config"
	"github.com/noah-isme/scholar-admissions-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/scholar-admissions-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/scholar-admissions-api/pkg/middleware/requestid"
)

type routes struct {
	auth        *handler.AuthHandler
	scholars    *handler.ScholarHandler
	department  *handler.DepartmentHandler
	examination *handler.ExaminationHandler
	events      *handler.EventsHandler
	metrics     *handler.MetricsHandler
	exports     *handler.ExportHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routes, tokens middleware.TokenValidator, observer middleware.RequestObserver, audit middleware.AuditLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(observer))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := "/" + strings.Trim(cfg.APIPrefix, "/")
	api := r.Group(prefix, middleware.WithResponseMeta())
	api.POST("/auth/login", h.auth.Login)

	authed := api.Group("", middleware.JWT(tokens))
	authed.GET("/auth/me", h.auth.Me)
	authed.GET("/events", h.events.Stream)

	allRoles := middleware.RBAC(models.RoleAdmin, models.RoleDirector, models.RoleDepartment)
	directors := middleware.RBAC(models.RoleAdmin, models.RoleDirector)
	departments := middleware.RBAC(models.RoleDepartment)

	apps := authed.Group("/scholars/applications")
	apps.GET("", allRoles, h.scholars.ListApplications)
	apps.GET("/summary", allRoles, h.scholars.Summary)
	apps.GET("/:id", allRoles, h.scholars.GetApplication)
	apps.POST("", directors, h.scholars.CreateApplication)
	apps.DELETE("", middleware.RBAC(models.RoleAdmin), h.scholars.DeleteApplications)
	apps.POST("/import", directors, h.scholars.ImportApplications)

	dept := authed.Group("/department/applications", departments)
	dept.POST("/:id/approve", h.department.Approve)
	dept.POST("/:id/reject", h.department.Reject)
	dept.POST("/:id/query", h.department.Query)
	dept.POST("/:id/resolve-query", h.department.ResolveQuery)
	dept.POST("/:id/forward", h.department.Forward)
	dept.POST("/:id/revert", h.department.Revert)
	dept.POST("/bulk/approve", h.department.BulkApprove)
	dept.POST("/bulk/reject", h.department.BulkReject)
	dept.POST("/bulk/forward", h.department.BulkForward)

	exams := authed.Group("/examinations")
	exams.GET("", allRoles, h.scholars.ListExaminations)
	exams.GET("/:id", allRoles, h.scholars.GetExamination)
	exams.POST("/:id/forward-written", directors, h.examination.ForwardWritten)
	exams.POST("/:id/forward-interview", directors, h.examination.ForwardInterview)
	exams.POST("/:id/forward-director", departments, h.examination.ForwardToDirector)
	exams.PUT("/:id/marks/written", allRoles, h.examination.UpdateWrittenMarks)
	exams.PUT("/:id/marks/interview", allRoles, h.examination.UpdateInterviewMarks)
	exams.PUT("/:id/marks/written70", allRoles, h.examination.UpdateWrittenMarks70)
	exams.POST("/marks/import", directors, h.scholars.ImportMarks)
	exams.POST("/bulk/forward-written", directors, h.examination.BulkForwardWritten)
	exams.POST("/bulk/forward-interview", directors, h.examination.BulkForwardInterview)
	exams.POST("/publish", directors, h.examination.Publish)

	if h.exports != nil {
		api.GET("/exports/download/:token", middleware.OptionalJWT(tokens), middleware.Audit(audit, "EXPORT_DOWNLOAD", "exports"), h.exports.Download)
		exports := authed.Group("/exports", directors)
		exports.POST("", h.exports.Create)
		exports.GET("/:id", h.exports.Status)
	}

	return r
}
