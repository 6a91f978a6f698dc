package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/example/srdflow/internal/export"
	"github.com/example/srdflow/internal/models"
	"github.com/example/srdflow/internal/service"
)

func (s *Server) createSRD(c *gin.Context) {
	var payload struct {
		RefNo       string         `json:"refNo"`
		Title       string         `json:"title" binding:"required"`
		Description string         `json:"description"`
		Requester   string         `json:"requester"`
		Metadata    datatypes.JSON `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	srd, err := s.srdService.CreateSRD(c.Request.Context(), service.CreateSRDInput{
		RefNo:       payload.RefNo,
		Title:       payload.Title,
		Description: payload.Description,
		Requester:   payload.Requester,
		Metadata:    payload.Metadata,
	}, actorFrom(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, srd)
}

func (s *Server) listSRDs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	srds, err := s.srdService.List(c.Request.Context(), limit)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, srds)
}

func (s *Server) getSRD(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}
	srd, err := s.srdService.Get(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, srd)
}

func (s *Server) patchSRD(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}
	var patch service.UpdateInput
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	srd, err := s.srdService.Update(c.Request.Context(), id, patch)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, srd)
}

func (s *Server) deleteSRD(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}
	if err := s.srdService.Delete(c.Request.Context(), id, actorFrom(c)); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) transitionStatus(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}
	var payload struct {
		Department string            `json:"department" binding:"required"`
		Status     string            `json:"status" binding:"required"`
		Comment    string            `json:"comment"`
		Fields     map[string]string `json:"fields"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	srd, err := s.srdService.TransitionStatus(c.Request.Context(), id, service.TransitionInput{
		Department: payload.Department,
		Status:     models.DepartmentStatus(payload.Status),
		Comment:    payload.Comment,
		Fields:     payload.Fields,
	}, actorFrom(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, srd)
}

func (s *Server) timeline(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}
	entries, err := s.srdService.Timeline(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) diagnostics(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}
	report, err := s.srdService.Diagnostics(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) autoFix(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}
	changes, srd, err := s.srdService.AutoFix(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes, "srd": srd})
}

func (s *Server) startProduction(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}
	srd, err := s.srdService.StartProduction(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, srd)
}

func (s *Server) completeStage(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}
	var payload struct {
		StageName   string `json:"stageName"`
		CompletedBy string `json:"completedBy"`
		Notes       string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	srd, err := s.srdService.CompleteStage(c.Request.Context(), id, service.CompleteStageInput{
		StageName:   payload.StageName,
		CompletedBy: payload.CompletedBy,
		Notes:       payload.Notes,
	}, actorFrom(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, srd)
}

func (s *Server) updateStageStatus(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}
	var payload struct {
		Status string `json:"status" binding:"required"`
		Notes  string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	srd, err := s.srdService.UpdateStageStatus(c.Request.Context(), id, models.StageStatus(payload.Status), payload.Notes)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, srd)
}

func (s *Server) exportSRDs(c *gin.Context) {
	srds, err := s.srds.All(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	filename := fmt.Sprintf("srd-register-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.WriteRegister(c.Writer, srds); err != nil {
		s.logger.Error("export register", zap.Error(err))
	}
}

func (s *Server) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}
