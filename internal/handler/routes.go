package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/campus-board/enroll-api/internal/middleware"
	"github.com/campus-board/enroll-api/internal/models"
	"github.com/campus-board/enroll-api/internal/service"
	"github.com/campus-board/enroll-api/pkg/config"
)

// Handlers bundles every handler wired into the router.
type Handlers struct {
	Auth        *AuthHandler
	Catalog     *CatalogHandler
	Enrollments *EnrollmentHandler
	Grades      *GradeHandler
}

// Deps bundles the cross-cutting collaborators the router needs.
type Deps struct {
	Config    *config.Config
	Validator middleware.TokenValidator
	Audit     *middleware.AuditRecorder
	Metrics   *service.MetricsService
}

// RegisterRoutes mounts every route group on the engine.
func RegisterRoutes(r *gin.Engine, h Handlers, deps Deps) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(deps.Config.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/signup", h.Auth.Signup)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Validator))

	secured.POST("/auth/logout", h.Auth.Logout)
	secured.GET("/auth/me", h.Auth.Me)

	secured.GET("/courses", h.Catalog.ListCourses)
	secured.GET("/sections", h.Catalog.ListSections)
	secured.GET("/sections/:id", h.Catalog.GetSection)
	secured.POST("/sections",
		middleware.RBAC(models.RoleFaculty, models.RoleAdmin),
		h.Catalog.CreateSection)
	secured.PATCH("/sections/:id",
		middleware.RBAC(models.RoleFaculty, models.RoleAdmin),
		h.Catalog.UpdateSection)

	secured.GET("/enrollments", middleware.RBAC(models.RoleStudent), h.Enrollments.List)
	secured.POST("/enrollments",
		middleware.RBAC(models.RoleStudent),
		deps.Audit.Audit(models.AuditActionEnroll, "enrollment", ""),
		h.Enrollments.Enroll)
	secured.DELETE("/enrollments/:id",
		middleware.RBAC(models.RoleStudent),
		deps.Audit.Audit(models.AuditActionDrop, "enrollment", "id"),
		h.Enrollments.Drop)

	secured.GET("/grades/me", middleware.RBAC(models.RoleStudent), h.Grades.ListMine)
	secured.POST("/grades",
		middleware.RBAC(models.RoleFaculty),
		deps.Audit.Audit(models.AuditActionGradeUpload, "grade", ""),
		h.Grades.Upload)
	secured.PATCH("/grades/:id",
		middleware.RBAC(models.RoleFaculty),
		deps.Audit.Audit(models.AuditActionGradeUpdate, "grade", "id"),
		h.Grades.Update)
	secured.DELETE("/grades/:id",
		middleware.RBAC(models.RoleFaculty),
		deps.Audit.Audit(models.AuditActionGradeDelete, "grade", "id"),
		h.Grades.Delete)

	secured.GET("/sections/:id/grades",
		middleware.RBAC(models.RoleFaculty, models.RoleAdmin),
		h.Grades.ListSection)
	secured.GET("/sections/:id/grades/stats",
		middleware.RBAC(models.RoleFaculty, models.RoleAdmin),
		h.Grades.SectionStats)
	if deps.Config.Exports.Enabled {
		secured.GET("/sections/:id/grades/export",
			middleware.RBAC(models.RoleFaculty, models.RoleAdmin),
			h.Grades.ExportSection)
	}
}
