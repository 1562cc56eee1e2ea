package metaanalysis

import (
	"time"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
)

// RawRecord is one row of a flat workbook kept verbatim for later curation.
// Invalid lists the columns whose cells could not be coerced to a number,
// boolean or date and were stored as text instead.
type RawRecord struct {
	ID        core.ID                `json:"id"`
	Source    string                 `json:"source"`
	Sheet     string                 `json:"sheet"`
	Row       int                    `json:"row"`
	Data      map[string]interface{} `json:"data"`
	Invalid   []string               `json:"_invalid"`
	CreatedAt time.Time              `json:"created_at"`
}
