package api

import (
	"fmt"
	"net/http"

	"github.com/plew99/cytokines-metaanalysis/app"

	"github.com/gin-gonic/gin"
)

// importWorkbook handles POST /import with a multipart "file" field.
// dry_run, replace and strict are read from the query or the form.
func (s *Server) importWorkbook(c *gin.Context) {
	var opts app.ImportOptions
	var err error
	for name, target := range map[string]*bool{"dry_run": &opts.DryRun, "replace": &opts.Replace, "strict": &opts.Strict} {
		if *target, err = boolQuery(c, name); err != nil {
			s.badRequest(c, err)
			return
		}
	}

	header, err := c.FormFile("file")
	if err != nil {
		s.badRequest(c, fmt.Errorf("multipart field 'file' is required: %w", err))
		return
	}
	file, err := header.Open()
	if err != nil {
		s.badRequest(c, err)
		return
	}
	defer file.Close()

	result, err := s.imports.ImportReader(c.Request.Context(), file, header.Filename, opts)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
