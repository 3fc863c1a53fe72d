package models

import (
	"encoding/json"
)

// PipelineDataIDColumn keys metadata rows and feature matrix rows.
const PipelineDataIDColumn = "pipeline_data_id"

// AnalysisRequest identifies one pipeline run.
type AnalysisRequest struct {
	WorkspaceID string `json:"workspace_id"`
	AnalysisID  string `json:"analysis_id"`
}

// MetadataTable holds the experiment covariates of every sample. Columns keeps
// the order the portal returned them in, which decides the row order of the
// formatted tool chain input.
type MetadataTable struct {
	Columns []string
	Rows    []MetadataRow
}

// MetadataRow is one sample. A column absent from Values is null.
type MetadataRow struct {
	// RawID is pipeline_data_id exactly as the portal encoded it, so it can be
	// sent back with its original JSON type.
	RawID  json.RawMessage
	Values map[string]string
}

// ID returns the pipeline_data_id as text.
func (r MetadataRow) ID() string {
	return r.Values[PipelineDataIDColumn]
}

// RawIDs returns the pipeline_data_id of every row in table order.
func (t *MetadataTable) RawIDs() []json.RawMessage {
	ids := make([]json.RawMessage, 0, len(t.Rows))
	for _, r := range t.Rows {
		ids = append(ids, r.RawID)
	}
	return ids
}

// FeatureMatrix is a samples x features table of abundances stored column
// major: Data[j][i] is feature Columns[j] in sample SampleIDs[i]. Columns may
// repeat until the matrix has been cleaned.
type FeatureMatrix struct {
	SampleIDs []string
	Columns   []string
	Data      [][]float64
}

// DropColumn removes every column named name and reports whether any existed.
func (m *FeatureMatrix) DropColumn(name string) bool {
	cols := m.Columns[:0]
	data := m.Data[:0]
	dropped := false
	for j, c := range m.Columns {
		if c == name {
			dropped = true
			continue
		}
		cols = append(cols, c)
		data = append(data, m.Data[j])
	}
	m.Columns, m.Data = cols, data
	return dropped
}

// FormattedInput is the transposed table handed to the tool chain. Rows[0]
// is the header row.
type FormattedInput struct {
	Rows [][]string
}

// ToolParams are the numeric arguments of the format stage.
type ToolParams struct {
	SubjectRow int
	ClassRow   int
	NormValue  int
}

// BiomarkerResult is one significant feature reported by the tool chain. Nil
// numbers are values the tool emitted as placeholders.
type BiomarkerResult struct {
	Feature        string   `json:"feature"`
	LogHighestMean *float64 `json:"log_highest_mean"`
	Class          string   `json:"class"`
	LDA            *float64 `json:"lda"`
	PValue         *float64 `json:"p_value"`
}

// ResultPayload is the body of a successful submission.
type ResultPayload struct {
	AnalysisID string         `json:"analysis_id"`
	Result     AnalysisResult `json:"result"`
}

type AnalysisResult struct {
	S3Paths []string          `json:"s3_paths"`
	Lefse   []BiomarkerResult `json:"lefse"`
}

// ErrorPayload is the body of an error submission.
type ErrorPayload struct {
	AnalysisID string      `json:"analysis_id"`
	Result     ErrorResult `json:"result"`
}

type ErrorResult struct {
	Error string `json:"error"`
}

// RunReport is what the invocation harness reports for one run.
type RunReport struct {
	StatusCode int    `json:"statusCode"`
	AnalysisID string `json:"analysis_id"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Succeeded reports whether a full result was submitted.
func (r *RunReport) Succeeded() bool {
	return r.StatusCode == 200
}
