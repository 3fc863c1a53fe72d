package results

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/lefse-processor/internal/mapping"
	"github.com/feichai0017/lefse-processor/internal/models"
	"github.com/feichai0017/lefse-processor/pkg/logger"
	"github.com/feichai0017/lefse-processor/pkg/storage/memory"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(imaging.New(8, 6, color.NRGBA{R: 200, A: 255}), p))
	return p
}

func TestTranslateDropsClasslessRowsAndKeepsMissingNumbers(t *testing.T) {
	path := writeFile(t, "lda_results.res", "f1\t3.2\t\t2.1\t0.01\nf2\t4.0\tA\tx\t0.02\n")

	got, err := Translate(path, mapping.Build(nil))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "f2", got[0].Feature)
	assert.Equal(t, "A", got[0].Class)
	assert.Nil(t, got[0].LDA)
	require.NotNil(t, got[0].PValue)
	assert.Equal(t, 0.02, *got[0].PValue)
	require.NotNil(t, got[0].LogHighestMean)
	assert.Equal(t, 4.0, *got[0].LogHighestMean)

	data, err := json.Marshal(got[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"feature":"f2","log_highest_mean":4,"class":"A","lda":null,"p_value":0.02}`, string(data))
}

func TestTranslateRestoresOriginalNames(t *testing.T) {
	mp := mapping.Build([]string{"Bacteroides fragilis", "[Eubacterium] rectale"})
	path := writeFile(t, "lda_results.res",
		"Bacteroidesfragilis\t5.1\tdisease\t3.9\t0.003\n"+
			"Eubacteriumrectale\t4.7\thealthy\t3.1\t0.04\n"+
			"Unmapped_taxon\t2.0\thealthy\t2.5\t-\n"+
			"Akkermansia\t3.3\t\t-\t-\n")

	got, err := Translate(path, mp)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Bacteroides fragilis", got[0].Feature)
	assert.Equal(t, "[Eubacterium] rectale", got[1].Feature)
	assert.Equal(t, "Unmapped_taxon", got[2].Feature)
	assert.Nil(t, got[2].PValue)
}

func TestTranslateErrors(t *testing.T) {
	_, err := Translate(filepath.Join(t.TempDir(), "missing.res"), nil)
	var te *models.TranslationError
	require.True(t, errors.As(err, &te))

	path := writeFile(t, "bad.res", "f1\t1\tA\t2\t0.1\nf2\t1\tA\n")
	_, err = Translate(path, nil)
	require.True(t, errors.As(err, &te))
	assert.Equal(t, path, te.Path)
	assert.Greater(t, te.Line, 0)
}

func TestTranslateEmptyFile(t *testing.T) {
	got, err := Translate(writeFile(t, "empty.res", ""), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

type fakeSink struct {
	results []models.ResultPayload
	errs    []models.ErrorPayload
	wsIDs   []string
	fail    error
}

func (f *fakeSink) SubmitResult(_ context.Context, ws string, p models.ResultPayload) error {
	f.wsIDs = append(f.wsIDs, ws)
	f.results = append(f.results, p)
	return f.fail
}

func (f *fakeSink) SubmitError(_ context.Context, ws string, p models.ErrorPayload) error {
	f.wsIDs = append(f.wsIDs, ws)
	f.errs = append(f.errs, p)
	return f.fail
}

type brokenStore struct{}

func (brokenStore) Store(context.Context, io.Reader, string) (string, error) {
	return "", errors.New("bucket unavailable")
}
func (brokenStore) Delete(context.Context, string) error { return nil }
func (brokenStore) CleanupBefore(context.Context, string, time.Time) (int, error) {
	return 0, nil
}

var testReq = models.AnalysisRequest{WorkspaceID: "ws-1", AnalysisID: "an-9"}

func TestSubmitUploadsThenSubmits(t *testing.T) {
	dir := t.TempDir()
	images := []string{writePNG(t, dir, "cladogram.png"), writePNG(t, dir, "res.png")}
	store := memory.New("bucket")
	sink := &fakeSink{}
	lda := 3.5

	err := NewSubmitter(sink, store, "prod", logger.NewTestLogger()).Submit(context.Background(), testReq,
		[]models.BiomarkerResult{{Feature: "Bacteroides fragilis", Class: "A", LDA: &lda}}, images)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"prod/analysis_results/an-9/cladogram.png",
		"prod/analysis_results/an-9/res.png",
	}, store.Keys())
	require.Len(t, sink.results, 1)
	assert.Equal(t, "ws-1", sink.wsIDs[0])
	assert.Equal(t, "an-9", sink.results[0].AnalysisID)
	assert.Equal(t, []string{
		"memory://bucket/prod/analysis_results/an-9/cladogram.png",
		"memory://bucket/prod/analysis_results/an-9/res.png",
	}, sink.results[0].Result.S3Paths)
	assert.Len(t, sink.results[0].Result.Lefse, 1)
}

func TestSubmitUploadFailureIsTerminal(t *testing.T) {
	dir := t.TempDir()
	sink := &fakeSink{}
	err := NewSubmitter(sink, brokenStore{}, "prod", logger.NewTestLogger()).
		Submit(context.Background(), testReq, nil, []string{writePNG(t, dir, "res.png")})

	var se *models.SubmissionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "upload res.png", se.Op)
	assert.Empty(t, sink.results)
}

func TestSubmitRejectsCorruptImage(t *testing.T) {
	dir := t.TempDir()
	good := writePNG(t, dir, "cladogram.png")
	bad := filepath.Join(dir, "res.png")
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0644))
	store := memory.New("bucket")
	sink := &fakeSink{}

	err := NewSubmitter(sink, store, "prod", logger.NewTestLogger()).
		Submit(context.Background(), testReq, nil, []string{good, bad})

	var se *models.SubmissionError
	require.True(t, errors.As(err, &se))
	assert.Empty(t, store.Keys(), "nothing is uploaded when any artifact is invalid")
	assert.Empty(t, sink.results)
}

func TestSubmitPortalFailure(t *testing.T) {
	sink := &fakeSink{fail: errors.New("502")}
	err := NewSubmitter(sink, memory.New("b"), "dev", logger.NewTestLogger()).
		Submit(context.Background(), testReq, nil, nil)

	var se *models.SubmissionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "submit_analysis_result", se.Op)
	require.Len(t, sink.results, 1)
	assert.NotNil(t, sink.results[0].Result.Lefse)
	assert.NotNil(t, sink.results[0].Result.S3Paths)
}

func TestSubmitError(t *testing.T) {
	sink := &fakeSink{}
	s := NewSubmitter(sink, memory.New("b"), "dev", logger.NewTestLogger())
	require.NoError(t, s.SubmitError(context.Background(), testReq, "run_lefse failed: boom"))

	require.Len(t, sink.errs, 1)
	assert.Equal(t, models.ErrorPayload{
		AnalysisID: "an-9",
		Result:     models.ErrorResult{Error: "run_lefse failed: boom"},
	}, sink.errs[0])

	sink.fail = errors.New("down")
	assert.Error(t, s.SubmitError(context.Background(), testReq, "x"))
}

func TestVerifyImageSkipsNonImages(t *testing.T) {
	assert.NoError(t, VerifyImage(writeFile(t, "lda_results.res", "not an image")))
}
