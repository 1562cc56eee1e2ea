package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/plew99/cytokines-metaanalysis/app"
	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
	"github.com/plew99/cytokines-metaanalysis/ports"

	"github.com/gin-gonic/gin"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
)

// studyResponse adds the rendered notes to a study detail
type studyResponse struct {
	*app.StudyDetail
	NotesHTML string `json:"notes_html,omitempty"`
}

type tagRequest struct {
	Name string `json:"name"`
}

func studyID(c *gin.Context) core.ID {
	return core.ID(c.Param("id"))
}

// listStudies handles GET /studies?sort=&direction=&tag=&limit=&offset=
func (s *Server) listStudies(c *gin.Context) {
	q, err := studyQuery(c)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	studies, err := s.studies.List(c.Request.Context(), q)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if studies == nil {
		studies = []*ma.Study{}
	}
	c.JSON(http.StatusOK, gin.H{"studies": studies})
}

func studyQuery(c *gin.Context) (ports.StudyQuery, error) {
	q := ports.StudyQuery{
		Sort: strings.ToLower(c.Query("sort")),
		Tag:  c.Query("tag"),
	}
	switch strings.ToLower(c.DefaultQuery("direction", "asc")) {
	case "asc":
	case "desc":
		q.Descending = true
	default:
		return q, fmt.Errorf("direction must be asc or desc")
	}

	var err error
	if q.Limit, err = intQuery(c, "limit"); err != nil {
		return q, err
	}
	if q.Offset, err = intQuery(c, "offset"); err != nil {
		return q, err
	}
	return q, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func boolQuery(c *gin.Context, name string) (bool, error) {
	v := c.Query(name)
	if v == "" {
		v = c.PostForm(name)
	}
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return b, nil
}

func (s *Server) createStudy(c *gin.Context) {
	var study ma.Study
	if err := c.ShouldBindJSON(&study); err != nil {
		s.badRequest(c, err)
		return
	}
	study.ID = ""
	if err := s.studies.Create(c.Request.Context(), &study); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, study)
}

func (s *Server) getStudy(c *gin.Context) {
	detail, err := s.studies.Get(c.Request.Context(), studyID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	resp := studyResponse{StudyDetail: detail}
	if detail.Study.Notes != "" {
		resp.NotesHTML = renderNotes(detail.Study.Notes)
	}
	c.JSON(http.StatusOK, resp)
}

// renderNotes converts study notes to HTML. Raw HTML in the notes is dropped
// and only safe link protocols are rendered as links.
func renderNotes(notes string) string {
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.SkipHTML | html.Safelink})
	return string(markdown.ToHTML([]byte(notes), nil, renderer))
}

// deleteStudy handles DELETE /studies/:id; children are only removed with ?cascade=true
func (s *Server) deleteStudy(c *gin.Context) {
	cascade, err := boolQuery(c, "cascade")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.studies.Delete(c.Request.Context(), studyID(c), cascade); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addArm(c *gin.Context) {
	var arm ma.Arm
	if err := c.ShouldBindJSON(&arm); err != nil {
		s.badRequest(c, err)
		return
	}
	arm.ID = ""
	if err := s.studies.AddArm(c.Request.Context(), studyID(c), &arm); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, arm)
}

func (s *Server) addOutcome(c *gin.Context) {
	var outcome ma.Outcome
	if err := c.ShouldBindJSON(&outcome); err != nil {
		s.badRequest(c, err)
		return
	}
	outcome.ID = ""
	if err := s.studies.AddOutcome(c.Request.Context(), studyID(c), &outcome); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, outcome)
}

func (s *Server) addCovariate(c *gin.Context) {
	var covariate ma.Covariate
	if err := c.ShouldBindJSON(&covariate); err != nil {
		s.badRequest(c, err)
		return
	}
	covariate.ID = ""
	if err := s.studies.AddCovariate(c.Request.Context(), studyID(c), &covariate); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, covariate)
}

func (s *Server) tagStudy(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	tag, err := s.studies.Tag(c.Request.Context(), studyID(c), req.Name)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tag)
}
