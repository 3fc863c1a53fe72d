// Package preprocess builds the LEfSe input file from portal data.
package preprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/feichai0017/lefse-processor/internal/mapping"
	"github.com/feichai0017/lefse-processor/internal/models"
	"github.com/feichai0017/lefse-processor/internal/portal"
	"github.com/feichai0017/lefse-processor/internal/utils/validator"
	"github.com/feichai0017/lefse-processor/pkg/converters"
	"github.com/feichai0017/lefse-processor/pkg/logger"
)

// DefaultTaxLevel is used when the portal does not name one.
const DefaultTaxLevel = "species"

// Portal is the subset of the portal client the builder needs.
type Portal interface {
	LefseInput(ctx context.Context, req models.AnalysisRequest) (*portal.LefseInput, error)
	ResultsByIDs(ctx context.Context, ids []json.RawMessage, pipelineID json.RawMessage) ([]byte, error)
	ConvertGCAs(ctx context.Context, workspaceID string, gcas []string, taxLevel string) (map[string]string, error)
}

// Metadata is the validated answer of the lefse_input endpoint.
type Metadata struct {
	Table      *models.MetadataTable
	PipelineID json.RawMessage
	TaxLevel   string
}

// Output describes the files written by Build.
type Output struct {
	InputFile   string
	MappingFile string
	Mapping     *mapping.Mapping
	Params      models.ToolParams
	Samples     int
	Features    int
}

type Builder struct {
	portal   Portal
	defaults models.ToolParams
	logger   logger.Logger
}

func NewBuilder(p Portal, defaults models.ToolParams, log logger.Logger) *Builder {
	return &Builder{
		portal:   p,
		defaults: defaults,
		logger:   log.Named("preprocess"),
	}
}

// FetchMetadata loads and validates the metadata of an analysis. A constant
// covariate fails the run with *models.InvalidInputError.
func (b *Builder) FetchMetadata(ctx context.Context, req models.AnalysisRequest) (*Metadata, error) {
	in, err := b.portal.LefseInput(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}
	table, err := ParseMetadata(in.Metadata)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateMetadata(table); err != nil {
		return nil, err
	}

	taxLevel := in.TaxLevel
	if taxLevel == "" {
		taxLevel = DefaultTaxLevel
	}
	b.logger.Info("Fetched metadata",
		logger.String("pipelineId", string(in.PipelineID)),
		logger.String("taxLevel", taxLevel),
		logger.Int("samples", len(table.Rows)),
		logger.Strings("columns", table.Columns),
	)
	return &Metadata{Table: table, PipelineID: in.PipelineID, TaxLevel: taxLevel}, nil
}

// FetchFeatureMatrix downloads the per-sample results and keeps the numeric
// columns.
func (b *Builder) FetchFeatureMatrix(ctx context.Context, pipelineID json.RawMessage, ids []json.RawMessage) (*models.FeatureMatrix, error) {
	data, err := b.portal.ResultsByIDs(ctx, ids, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch results: %w", err)
	}
	m, err := ParseFeatureMatrix(data)
	if err != nil {
		return nil, err
	}
	b.logger.Info("Fetched feature matrix",
		logger.Int("samples", len(m.SampleIDs)),
		logger.Int("columns", len(m.Columns)),
	)
	return m, nil
}

// ResolveFeatureNames renames accession columns to taxonomic names.
func (b *Builder) ResolveFeatureNames(ctx context.Context, workspaceID string, m *models.FeatureMatrix, taxLevel string) error {
	names, err := b.portal.ConvertGCAs(ctx, workspaceID, append([]string(nil), m.Columns...), taxLevel)
	if err != nil {
		return fmt.Errorf("failed to resolve feature names: %w", err)
	}
	RenameColumns(m, names)
	return nil
}

// Build runs every preprocessing step in order and writes the formatted
// input and the identifier mapping.
func (b *Builder) Build(ctx context.Context, req models.AnalysisRequest, inputFile, mappingFile string) (*Output, error) {
	meta, err := b.FetchMetadata(ctx, req)
	if err != nil {
		return nil, err
	}

	raw, err := b.FetchFeatureMatrix(ctx, meta.PipelineID, meta.Table.RawIDs())
	if err != nil {
		return nil, err
	}

	if err := b.ResolveFeatureNames(ctx, req.WorkspaceID, raw, meta.TaxLevel); err != nil {
		return nil, err
	}

	cleaned, mp := CleanColumns(raw)
	if len(cleaned.Columns) == 0 {
		return nil, &models.InvalidInputError{Reason: "no usable features after cleaning column names"}
	}
	b.logger.Info("Cleaned feature columns",
		logger.Int("before", len(raw.Columns)),
		logger.Int("after", len(cleaned.Columns)),
	)

	if err := mapping.Save(mappingFile, mp); err != nil {
		return nil, err
	}

	params, err := RowParams(meta.Table.Columns, b.defaults)
	if err != nil {
		return nil, err
	}

	formatted, err := MergeAndFormat(meta.Table, cleaned)
	if err != nil {
		return nil, err
	}
	if err := WriteFormatted(inputFile, formatted); err != nil {
		return nil, err
	}

	return &Output{
		InputFile:   inputFile,
		MappingFile: mappingFile,
		Mapping:     mp,
		Params:      params,
		Samples:     len(formatted.Rows[0]) - 1,
		Features:    len(cleaned.Columns),
	}, nil
}

// WriteFormatted writes the formatted input as tab-separated text.
func WriteFormatted(path string, in *models.FormattedInput) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := converters.WriteTSV(f, in.Rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
