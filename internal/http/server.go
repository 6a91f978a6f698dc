package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/example/srdflow/internal/backup"
	"github.com/example/srdflow/internal/middleware"
	"github.com/example/srdflow/internal/models"
	"github.com/example/srdflow/internal/realtime"
	"github.com/example/srdflow/internal/repository"
	"github.com/example/srdflow/internal/service"
)

// Server wraps the gin engine and collaborators needed to handle API requests.
type Server struct {
	Engine      *gin.Engine
	srdService  *service.SRDService
	srds        *repository.SRDRepository
	departments *repository.DepartmentRepository
	stages      *repository.StageRepository
	hub         *realtime.Hub
	backups     *backup.Service
	logger      *zap.Logger
}

// NewServer constructs the API server and registers routes. An empty
// jwtSecret disables authentication, which is only intended for development
// and tests.
func NewServer(svc *service.SRDService, srds *repository.SRDRepository, departments *repository.DepartmentRepository, stages *repository.StageRepository, hub *realtime.Hub, backups *backup.Service, jwtSecret string, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.CORS(), middleware.Logger(logger), gin.Recovery())

	srv := &Server{
		Engine:      router,
		srdService:  svc,
		srds:        srds,
		departments: departments,
		stages:      stages,
		hub:         hub,
		backups:     backups,
		logger:      logger,
	}
	srv.registerRoutes(jwtSecret)
	return srv
}

func (s *Server) registerRoutes(jwtSecret string) {
	s.Engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.Engine.Group("/api")
	if jwtSecret != "" {
		api.Use(middleware.JWTAuth(jwtSecret))
	} else {
		s.logger.Warn("JWT_SECRET empty, API authentication disabled")
	}

	api.POST("/srds", s.createSRD)
	api.GET("/srds", s.listSRDs)
	api.GET("/srds/export", s.exportSRDs)
	api.GET("/srds/:id", s.getSRD)
	api.PATCH("/srds/:id", s.patchSRD)
	api.DELETE("/srds/:id", s.deleteSRD)
	api.POST("/srds/:id/status", s.transitionStatus)
	api.GET("/srds/:id/timeline", s.timeline)
	api.GET("/srds/:id/diagnostics", s.diagnostics)
	api.POST("/srds/:id/diagnostics/fix", s.autoFix)
	api.POST("/srds/:id/production/start", s.startProduction)
	api.POST("/srds/:id/production/complete-stage", s.completeStage)
	api.PATCH("/srds/:id/production/stage", s.updateStageStatus)

	api.GET("/departments", s.listDepartments)
	api.POST("/departments", s.createDepartment)
	api.PUT("/departments/:slug", s.updateDepartment)
	api.DELETE("/departments/:slug", s.deleteDepartment)
	api.GET("/departments/:slug/fields", s.listDepartmentFields)
	api.PUT("/departments/:slug/fields", s.replaceDepartmentFields)

	api.GET("/stages", s.listStages)
	api.POST("/stages", s.createStage)
	api.PATCH("/stages/:id", s.patchStage)

	api.POST("/admin/backup", s.runBackup)
	api.GET("/events", s.streamEvents)
}

// renderError maps domain errors onto HTTP status codes.
func (s *Server) renderError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrCommentRequired),
		errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, models.ErrInvalidStageStatus),
		errors.Is(err, models.ErrUnknownDepartment),
		errors.Is(err, models.ErrUnknownField):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrReadOnlyField):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrDuplicateRefNo):
		status = http.StatusConflict
	case errors.Is(err, models.ErrNotReady),
		errors.Is(err, models.ErrNotInProduction),
		errors.Is(err, models.ErrStageMismatch),
		errors.Is(err, models.ErrNoStagesConfigured):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
		s.logger.Error("request failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func actorFrom(c *gin.Context) service.Actor {
	id := middleware.IdentityFrom(c)
	actor := service.Actor{
		ID:         id.UserID,
		Name:       id.Name,
		Role:       id.Role,
		Department: id.Department,
	}
	if actor.Name == "" {
		actor.Name = "system"
	}
	return actor
}
