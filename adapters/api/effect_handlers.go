package api

import (
	"net/http"

	"github.com/plew99/cytokines-metaanalysis/app"
	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
	"github.com/plew99/cytokines-metaanalysis/internal/effects"

	"github.com/gin-gonic/gin"
)

// effectResponse is a stored effect with its display form
type effectResponse struct {
	*ma.Effect
	Inputs  ma.RawInput          `json:"inputs"`
	Display effects.Presentation `json:"display"`
}

func present(e *ma.Effect) effectResponse {
	return effectResponse{Effect: e, Inputs: e.Raw(), Display: effects.Present(*e, DisplayPlaces)}
}

func (s *Server) bindEffect(c *gin.Context) (app.EffectRequest, bool) {
	var req app.EffectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return req, false
	}
	return req, true
}

func (s *Server) listEffects(c *gin.Context) {
	list, err := s.effects.ListByStudy(c.Request.Context(), studyID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]effectResponse, 0, len(list))
	for _, e := range list {
		out = append(out, present(e))
	}
	c.JSON(http.StatusOK, gin.H{"effects": out})
}

func (s *Server) createEffect(c *gin.Context) {
	req, ok := s.bindEffect(c)
	if !ok {
		return
	}
	effect, err := s.effects.Create(c.Request.Context(), studyID(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, present(effect))
}

// previewEffect derives and validates without persisting
func (s *Server) previewEffect(c *gin.Context) {
	req, ok := s.bindEffect(c)
	if !ok {
		return
	}
	effect, err := s.effects.Preview(c.Request.Context(), studyID(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, present(effect))
}

func (s *Server) getEffect(c *gin.Context) {
	effect, err := s.effects.Get(c.Request.Context(), core.ID(c.Param("id")))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, present(effect))
}

func (s *Server) updateEffect(c *gin.Context) {
	req, ok := s.bindEffect(c)
	if !ok {
		return
	}
	effect, err := s.effects.Update(c.Request.Context(), core.ID(c.Param("id")), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, present(effect))
}

func (s *Server) deleteEffect(c *gin.Context) {
	if err := s.effects.Delete(c.Request.Context(), core.ID(c.Param("id"))); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
