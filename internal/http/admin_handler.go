package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/example/srdflow/internal/models"
)

func (s *Server) listDepartments(c *gin.Context) {
	depts, err := s.departments.List(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, depts)
}

func (s *Server) createDepartment(c *gin.Context) {
	var payload struct {
		Slug          string `json:"slug" binding:"required"`
		Name          string `json:"name" binding:"required"`
		Order         int    `json:"order"`
		IsParticipant *bool  `json:"isParticipant"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dept := &models.Department{
		Slug:          payload.Slug,
		Name:          payload.Name,
		Order:         payload.Order,
		IsParticipant: payload.IsParticipant == nil || *payload.IsParticipant,
	}
	if err := s.departments.Create(c.Request.Context(), dept); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dept)
}

func (s *Server) updateDepartment(c *gin.Context) {
	dept, err := s.departments.FindBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	var payload struct {
		Name          string `json:"name"`
		Order         *int   `json:"order"`
		IsParticipant *bool  `json:"isParticipant"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if payload.Name != "" {
		dept.Name = payload.Name
	}
	if payload.Order != nil {
		dept.Order = *payload.Order
	}
	if payload.IsParticipant != nil {
		dept.IsParticipant = *payload.IsParticipant
	}
	if err := s.departments.Update(c.Request.Context(), dept); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, dept)
}

func (s *Server) deleteDepartment(c *gin.Context) {
	if err := s.departments.DeleteCascade(c.Request.Context(), c.Param("slug")); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listDepartmentFields(c *gin.Context) {
	fields, err := s.departments.ListFields(c.Request.Context(), c.Param("slug"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, fields)
}

func (s *Server) replaceDepartmentFields(c *gin.Context) {
	slug := c.Param("slug")
	if _, err := s.departments.FindBySlug(c.Request.Context(), slug); err != nil {
		s.renderError(c, err)
		return
	}
	var payload []struct {
		Name     string         `json:"name" binding:"required"`
		Label    string         `json:"label"`
		Type     string         `json:"type"`
		Required bool           `json:"required"`
		Options  datatypes.JSON `json:"options"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fields := make([]models.DepartmentField, 0, len(payload))
	for _, p := range payload {
		fieldType := p.Type
		if fieldType == "" {
			fieldType = "text"
		}
		fields = append(fields, models.DepartmentField{
			Name:     p.Name,
			Label:    p.Label,
			Type:     fieldType,
			Required: p.Required,
			Options:  p.Options,
		})
	}
	if err := s.departments.ReplaceFields(c.Request.Context(), slug, fields); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, fields)
}

func (s *Server) listStages(c *gin.Context) {
	stages, err := s.stages.List(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, stages)
}

func (s *Server) createStage(c *gin.Context) {
	var payload struct {
		Name     string `json:"name" binding:"required"`
		Order    int    `json:"order" binding:"required"`
		IsActive *bool  `json:"isActive"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	stage := &models.ProductionStage{
		Name:     payload.Name,
		Order:    payload.Order,
		IsActive: payload.IsActive == nil || *payload.IsActive,
	}
	if err := s.stages.Create(c.Request.Context(), stage); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stage)
}

func (s *Server) patchStage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	stage, err := s.stages.FindByID(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	var payload struct {
		Name     string `json:"name"`
		Order    *int   `json:"order"`
		IsActive *bool  `json:"isActive"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if payload.Name != "" {
		stage.Name = payload.Name
	}
	if payload.Order != nil {
		stage.Order = *payload.Order
	}
	if payload.IsActive != nil {
		stage.IsActive = *payload.IsActive
	}
	if err := s.stages.Update(c.Request.Context(), stage); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, stage)
}

func (s *Server) runBackup(c *gin.Context) {
	if s.backups == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backup storage not configured"})
		return
	}
	object, err := s.backups.Snapshot(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"object": object})
}
