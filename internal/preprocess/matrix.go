package preprocess

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/feichai0017/lefse-processor/internal/mapping"
	"github.com/feichai0017/lefse-processor/internal/models"
	"github.com/feichai0017/lefse-processor/pkg/converters"
)

const (
	// TotalCountsColumn is the per-sample aggregate the portal appends. It is
	// not a feature.
	TotalCountsColumn = "total_counts"

	resultIDKey = "run_result_id"
)

// ParseMetadata turns the portal's metadata array into a table, keeping the
// column order of the records.
func ParseMetadata(raw json.RawMessage) (*models.MetadataTable, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, &models.InvalidInputError{Reason: "metadata is missing"}
	}
	records, err := converters.DecodeRecords(raw)
	if err != nil {
		return nil, &models.InvalidInputError{Reason: fmt.Sprintf("metadata is malformed: %v", err)}
	}

	table := &models.MetadataTable{Columns: converters.Columns(records)}
	for _, rec := range records {
		row := models.MetadataRow{
			RawID:  rec.Values[models.PipelineDataIDColumn],
			Values: make(map[string]string, len(rec.Keys)),
		}
		for _, k := range rec.Keys {
			text, kind := converters.Scalar(rec.Values[k])
			if kind == converters.KindNull {
				continue
			}
			row.Values[k] = text
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// ParseFeatureMatrix builds the matrix from the records of results.json.
// run_result_id becomes the sample key; a column survives only if every
// non-null value in it is a number. Nulls count as zero.
func ParseFeatureMatrix(data []byte) (*models.FeatureMatrix, error) {
	records, err := converters.DecodeRecords(data)
	if err != nil {
		return nil, &models.InvalidInputError{Reason: fmt.Sprintf("results are malformed: %v", err)}
	}

	m := &models.FeatureMatrix{SampleIDs: make([]string, 0, len(records))}
	seen := make(map[string]bool, len(records))
	for i, rec := range records {
		id, kind := converters.Scalar(rec.Values[resultIDKey])
		if kind == converters.KindNull {
			return nil, &models.InvalidInputError{Reason: fmt.Sprintf("result record %d has no %s", i, resultIDKey)}
		}
		if seen[id] {
			return nil, &models.InvalidInputError{Reason: fmt.Sprintf("duplicate %s %s", resultIDKey, id)}
		}
		seen[id] = true
		m.SampleIDs = append(m.SampleIDs, id)
	}

	for _, col := range converters.Columns(records) {
		if col == resultIDKey {
			continue
		}
		values, ok := numericColumn(records, col)
		if !ok {
			continue
		}
		m.Columns = append(m.Columns, col)
		m.Data = append(m.Data, values)
	}
	return m, nil
}

func numericColumn(records []converters.Record, col string) ([]float64, bool) {
	values := make([]float64, len(records))
	present := false
	for i, rec := range records {
		raw, ok := rec.Values[col]
		if !ok {
			continue
		}
		if _, kind := converters.Scalar(raw); kind == converters.KindNull {
			continue
		}
		v, ok := converters.Number(raw)
		if !ok {
			return nil, false
		}
		values[i] = v
		present = true
	}
	return values, present
}

// RenameColumns applies names to the matrix columns; columns without an
// entry keep their name. The total_counts aggregate is dropped afterwards.
// Several accessions may resolve to the same name; they are merged later by
// CleanColumns.
func RenameColumns(m *models.FeatureMatrix, names map[string]string) {
	for j, c := range m.Columns {
		if n, ok := names[c]; ok {
			m.Columns[j] = n
		}
	}
	m.DropColumn(TotalCountsColumn)
}

// CleanColumns drops placeholder taxa, sanitizes the remaining names and sums
// every group of columns that share a sanitized name. The returned matrix has
// unique columns in sorted order.
func CleanColumns(m *models.FeatureMatrix) (*models.FeatureMatrix, *mapping.Mapping) {
	var originals []string
	seen := make(map[string]bool)
	for _, c := range m.Columns {
		if !mapping.Usable(c) || mapping.Sanitize(c) == "" || seen[c] {
			continue
		}
		seen[c] = true
		originals = append(originals, c)
	}
	mp := mapping.Build(originals)

	sums := make(map[string][]float64)
	for j, c := range m.Columns {
		cleaned, ok := mp.Cleaned(c)
		if !ok {
			continue
		}
		acc, ok := sums[cleaned]
		if !ok {
			acc = make([]float64, len(m.SampleIDs))
			sums[cleaned] = acc
		}
		for i, v := range m.Data[j] {
			acc[i] += v
		}
	}

	names := make([]string, 0, len(sums))
	for n := range sums {
		names = append(names, n)
	}
	sort.Strings(names)

	out := &models.FeatureMatrix{
		SampleIDs: append([]string(nil), m.SampleIDs...),
		Columns:   names,
		Data:      make([][]float64, len(names)),
	}
	for j, n := range names {
		out.Data[j] = sums[n]
	}
	return out, mp
}

// MergeAndFormat inner-joins metadata and matrix on pipeline_data_id and
// transposes the result: one row per metadata column, then one row per
// feature, one column per joined sample. Samples keep metadata order.
func MergeAndFormat(meta *models.MetadataTable, m *models.FeatureMatrix) (*models.FormattedInput, error) {
	index := make(map[string]int, len(m.SampleIDs))
	for i, id := range m.SampleIDs {
		index[id] = i
	}

	type joined struct {
		row    models.MetadataRow
		sample int
	}
	var samples []joined
	for _, r := range meta.Rows {
		if i, ok := index[r.ID()]; ok {
			samples = append(samples, joined{row: r, sample: i})
		}
	}
	if len(samples) == 0 {
		return nil, &models.InvalidInputError{Reason: "no samples shared between metadata and feature matrix"}
	}

	rows := make([][]string, 0, len(meta.Columns)+len(m.Columns))
	for _, col := range meta.Columns {
		line := make([]string, 0, len(samples)+1)
		line = append(line, col)
		for _, s := range samples {
			line = append(line, s.row.Values[col])
		}
		rows = append(rows, line)
	}
	for j, feature := range m.Columns {
		line := make([]string, 0, len(samples)+1)
		line = append(line, feature)
		for _, s := range samples {
			line = append(line, converters.FormatFloat(m.Data[j][s.sample]))
		}
		rows = append(rows, line)
	}
	return &models.FormattedInput{Rows: rows}, nil
}

// RowParams derives the 1-based class and subject rows of the formatted
// input from the metadata column order. Without a subject column the
// pipeline_data_id row identifies subjects; defaults apply only when neither
// column is present. A class row that is also the subject row is rejected.
func RowParams(columns []string, defaults models.ToolParams) (models.ToolParams, error) {
	params := defaults
	subject, idRow := 0, 0
	for i, c := range columns {
		switch c {
		case "class":
			params.ClassRow = i + 1
		case "subject":
			subject = i + 1
		case models.PipelineDataIDColumn:
			idRow = i + 1
		}
	}
	switch {
	case subject > 0:
		params.SubjectRow = subject
	case idRow > 0:
		params.SubjectRow = idRow
	}
	if params.ClassRow == params.SubjectRow {
		return params, &models.InvalidInputError{
			Reason: fmt.Sprintf("class row %d is also the subject row", params.ClassRow),
		}
	}
	return params, nil
}
