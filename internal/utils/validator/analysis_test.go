package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/lefse-processor/internal/models"
)

func table(cols []string, rows ...map[string]string) *models.MetadataTable {
	t := &models.MetadataTable{Columns: cols}
	for _, r := range rows {
		t.Rows = append(t.Rows, models.MetadataRow{Values: r})
	}
	return t
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(models.AnalysisRequest{WorkspaceID: "w", AnalysisID: "a"}))

	err := ValidateRequest(models.AnalysisRequest{WorkspaceID: " "})
	var inv *models.InvalidInputError
	require.True(t, errors.As(err, &inv))
	assert.Contains(t, inv.Reason, "workspace_id")
	assert.Contains(t, inv.Reason, "analysis_id")
}

func TestValidateMetadataConstantColumn(t *testing.T) {
	tbl := table([]string{"pipeline_data_id", "class"},
		map[string]string{"pipeline_data_id": "a", "class": "X"},
		map[string]string{"pipeline_data_id": "b", "class": "X"},
	)
	err := ValidateMetadata(tbl)

	var inv *models.InvalidInputError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "Column class has only one distinct value: X", inv.Reason)
}

func TestValidateMetadataAnySingleValuedColumnFails(t *testing.T) {
	cols := []string{"class", "subject", "pipeline_data_id"}
	base := []map[string]string{
		{"class": "A", "subject": "s1", "pipeline_data_id": "1"},
		{"class": "B", "subject": "s2", "pipeline_data_id": "2"},
		{"class": "A", "subject": "s3", "pipeline_data_id": "3"},
	}
	require.NoError(t, ValidateMetadata(table(cols, base...)))

	for _, col := range cols {
		t.Run(col, func(t *testing.T) {
			rows := make([]map[string]string, len(base))
			for i, r := range base {
				rows[i] = map[string]string{}
				for k, v := range r {
					rows[i][k] = v
				}
				rows[i][col] = "same"
			}
			var inv *models.InvalidInputError
			assert.True(t, errors.As(ValidateMetadata(table(cols, rows...)), &inv))
		})
	}
}

func TestValidateMetadataIgnoresNulls(t *testing.T) {
	tbl := table([]string{"pipeline_data_id", "class", "note"},
		map[string]string{"pipeline_data_id": "a", "class": "X"},
		map[string]string{"pipeline_data_id": "b", "class": "Y"},
	)
	assert.NoError(t, ValidateMetadata(tbl))

	tbl.Rows[0].Values["note"] = "only"
	assert.Error(t, ValidateMetadata(tbl))
}

func TestValidateMetadataDuplicateID(t *testing.T) {
	tbl := table([]string{"pipeline_data_id", "class"},
		map[string]string{"pipeline_data_id": "7", "class": "X"},
		map[string]string{"pipeline_data_id": "8", "class": "Y"},
		map[string]string{"pipeline_data_id": "7", "class": "Y"},
	)
	err := ValidateMetadata(tbl)

	var inv *models.InvalidInputError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "duplicate pipeline_data_id: 7", inv.Reason)

	tbl.Rows[2].Values["pipeline_data_id"] = "9"
	assert.NoError(t, ValidateMetadata(tbl))
}

func TestValidateMetadataShape(t *testing.T) {
	assert.Error(t, ValidateMetadata(nil))
	assert.Error(t, ValidateMetadata(table([]string{"class"})))
	assert.Error(t, ValidateMetadata(table([]string{"class"},
		map[string]string{"class": "A"}, map[string]string{"class": "B"})))
}
