// internal/utils/validator/analysis.go
package validator

import (
	"fmt"
	"strings"

	"github.com/feichai0017/lefse-processor/internal/models"
)

// ValidateRequest rejects requests that cannot even be reported back to the
// portal.
func ValidateRequest(req models.AnalysisRequest) error {
	var missing []string
	if strings.TrimSpace(req.WorkspaceID) == "" {
		missing = append(missing, "workspace_id")
	}
	if strings.TrimSpace(req.AnalysisID) == "" {
		missing = append(missing, "analysis_id")
	}
	if len(missing) > 0 {
		return &models.InvalidInputError{
			Reason: fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}

// ValidateMetadata enforces that the table has rows keyed by a unique
// pipeline_data_id and that no column holds a single distinct value. Nulls do
// not count as values.
func ValidateMetadata(table *models.MetadataTable) error {
	if table == nil || len(table.Rows) == 0 {
		return &models.InvalidInputError{Reason: "metadata is empty"}
	}
	if !hasColumn(table.Columns, models.PipelineDataIDColumn) {
		return &models.InvalidInputError{
			Reason: fmt.Sprintf("metadata has no %s column", models.PipelineDataIDColumn),
		}
	}
	ids := make(map[string]struct{}, len(table.Rows))
	for _, row := range table.Rows {
		id, ok := row.Values[models.PipelineDataIDColumn]
		if !ok {
			continue
		}
		if _, dup := ids[id]; dup {
			return &models.InvalidInputError{
				Reason: fmt.Sprintf("duplicate %s: %s", models.PipelineDataIDColumn, id),
			}
		}
		ids[id] = struct{}{}
	}
	for _, col := range table.Columns {
		distinct := make(map[string]struct{})
		var first string
		for _, row := range table.Rows {
			v, ok := row.Values[col]
			if !ok {
				continue
			}
			if len(distinct) == 0 {
				first = v
			}
			distinct[v] = struct{}{}
		}
		if len(distinct) == 1 {
			return &models.InvalidInputError{
				Reason: fmt.Sprintf("Column %s has only one distinct value: %s", col, first),
			}
		}
	}
	return nil
}

func hasColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}
