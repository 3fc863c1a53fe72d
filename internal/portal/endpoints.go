package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/klauspost/compress/zip"

	"github.com/feichai0017/lefse-processor/internal/models"
)

const (
	EndpointLefseInput   = "/lefse_input"
	EndpointResultsByIDs = "/get_results_by_ids"
	EndpointConvertGCAs  = "/convert_gcas"
	EndpointSubmitResult = "/submit_analysis_result"
	EndpointSubmitError  = "/submit_analysis_error"
)

// ResultsArchiveEntry is the file inside the get_results_by_ids archive.
const ResultsArchiveEntry = "results.json"

// LefseInput is the portal's description of an analysis. Metadata is left
// raw so the caller can keep its column order.
type LefseInput struct {
	Metadata   json.RawMessage `json:"metadata"`
	PipelineID json.RawMessage `json:"pipeline_id"`
	TaxLevel   string          `json:"tax_level"`
}

type lefseInputRequest struct {
	AnalysisID string `json:"analysis_id"`
}

type resultsByIDsRequest struct {
	ResultIDs  []json.RawMessage `json:"result_ids"`
	PipelineID json.RawMessage   `json:"pipeline_id"`
}

type convertGCAsRequest struct {
	GCAs     []string `json:"gcas"`
	TaxLevel string   `json:"tax_level"`
}

func workspaceQuery(workspaceID string) url.Values {
	return url.Values{"workspace_id": []string{workspaceID}}
}

// LefseInput fetches the metadata, pipeline and tax level of an analysis.
func (c *Client) LefseInput(ctx context.Context, req models.AnalysisRequest) (*LefseInput, error) {
	data, err := c.Call(ctx, EndpointLefseInput, workspaceQuery(req.WorkspaceID),
		lefseInputRequest{AnalysisID: req.AnalysisID})
	if err != nil {
		return nil, err
	}
	var in LefseInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, &models.UpstreamRequestError{Endpoint: EndpointLefseInput, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &in, nil
}

// ResultsByIDs downloads the per-sample results archive and returns the
// content of results.json.
func (c *Client) ResultsByIDs(ctx context.Context, ids []json.RawMessage, pipelineID json.RawMessage) ([]byte, error) {
	if ids == nil {
		ids = []json.RawMessage{}
	}
	data, err := c.Call(ctx, EndpointResultsByIDs, nil,
		resultsByIDsRequest{ResultIDs: ids, PipelineID: pipelineID})
	if err != nil {
		return nil, err
	}
	content, err := readArchiveEntry(data, ResultsArchiveEntry)
	if err != nil {
		return nil, &models.UpstreamRequestError{Endpoint: EndpointResultsByIDs, Err: err}
	}
	return content, nil
}

func readArchiveEntry(data []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open results archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s in results archive: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("results archive has no %s", name)
}

// ConvertGCAs resolves GCA accessions to taxonomic names at taxLevel.
func (c *Client) ConvertGCAs(ctx context.Context, workspaceID string, gcas []string, taxLevel string) (map[string]string, error) {
	if gcas == nil {
		gcas = []string{}
	}
	data, err := c.Call(ctx, EndpointConvertGCAs, workspaceQuery(workspaceID),
		convertGCAsRequest{GCAs: gcas, TaxLevel: taxLevel})
	if err != nil {
		return nil, err
	}
	var names map[string]*string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, &models.UpstreamRequestError{Endpoint: EndpointConvertGCAs, Err: fmt.Errorf("decode response: %w", err)}
	}
	out := make(map[string]string, len(names))
	for gca, name := range names {
		if name != nil && *name != "" {
			out[gca] = *name
		}
	}
	return out, nil
}

// SubmitResult delivers a successful analysis result.
func (c *Client) SubmitResult(ctx context.Context, workspaceID string, payload models.ResultPayload) error {
	_, err := c.Call(ctx, EndpointSubmitResult, workspaceQuery(workspaceID), payload)
	return err
}

// SubmitError reports a failed analysis.
func (c *Client) SubmitError(ctx context.Context, workspaceID string, payload models.ErrorPayload) error {
	_, err := c.Call(ctx, EndpointSubmitError, workspaceQuery(workspaceID), payload)
	return err
}
