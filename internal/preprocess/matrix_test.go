package preprocess

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/lefse-processor/internal/models"
)

func TestParseMetadataKeepsColumnOrder(t *testing.T) {
	raw := json.RawMessage(`[
		{"class":"A","subject":"s1","pipeline_data_id":7,"flag":true},
		{"class":"B","pipeline_data_id":"8","extra":null,"subject":"s2"}
	]`)
	table, err := ParseMetadata(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{"class", "subject", "pipeline_data_id", "flag", "extra"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "7", table.Rows[0].ID())
	assert.Equal(t, "8", table.Rows[1].ID())
	assert.Equal(t, "true", table.Rows[0].Values["flag"])
	_, hasExtra := table.Rows[1].Values["extra"]
	assert.False(t, hasExtra, "null values are absent")

	ids := table.RawIDs()
	assert.Equal(t, `7`, string(ids[0]))
	assert.Equal(t, `"8"`, string(ids[1]))
}

func TestParseMetadataRejectsMissing(t *testing.T) {
	for _, raw := range []string{``, `null`, `{"a":1}`} {
		_, err := ParseMetadata(json.RawMessage(raw))
		var inv *models.InvalidInputError
		assert.True(t, errors.As(err, &inv), "input %q", raw)
	}
}

func TestParseFeatureMatrixKeepsNumericColumnsOnly(t *testing.T) {
	data := []byte(`[
		{"run_result_id":1,"GCA_1":3,"name":"x","GCA_2":null,"ok":true},
		{"run_result_id":2,"GCA_1":1.5,"name":"y","GCA_2":4,"ok":false,"GCA_3":null}
	]`)
	m, err := ParseFeatureMatrix(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, m.SampleIDs)
	assert.Equal(t, []string{"GCA_1", "GCA_2"}, m.Columns)
	assert.Equal(t, [][]float64{{3, 1.5}, {0, 4}}, m.Data)
}

func TestParseFeatureMatrixRequiresUniqueIDs(t *testing.T) {
	_, err := ParseFeatureMatrix([]byte(`[{"run_result_id":1},{"run_result_id":1}]`))
	var inv *models.InvalidInputError
	require.True(t, errors.As(err, &inv))

	_, err = ParseFeatureMatrix([]byte(`[{"GCA_1":1}]`))
	require.True(t, errors.As(err, &inv))
}

func TestRenameColumnsDropsTotals(t *testing.T) {
	m := &models.FeatureMatrix{
		SampleIDs: []string{"a"},
		Columns:   []string{"GCA_1", "total_counts", "GCA_2"},
		Data:      [][]float64{{1}, {9}, {2}},
	}
	RenameColumns(m, map[string]string{"GCA_1": "Prevotella copri"})

	assert.Equal(t, []string{"Prevotella copri", "GCA_2"}, m.Columns)
	assert.Equal(t, [][]float64{{1}, {2}}, m.Data)
}

func TestCleanColumnsMergesCollisions(t *testing.T) {
	m := &models.FeatureMatrix{
		SampleIDs: []string{"s1", "s2"},
		Columns:   []string{"GCA_1_sp.", "GCA_1_sp", "_unclassified", "x"},
		Data:      [][]float64{{1, 2}, {10, 20}, {100, 200}, {5, 5}},
	}
	cleaned, mp := CleanColumns(m)

	assert.Equal(t, []string{"GCA_1_sp"}, cleaned.Columns)
	assert.Equal(t, [][]float64{{11, 22}}, cleaned.Data)
	assert.Equal(t, []string{"GCA_1_sp", "GCA_1_sp."}, mp.Originals("GCA_1_sp"))
	assert.Equal(t, "GCA_1_sp", mp.Original("GCA_1_sp"))

	_, ok := mp.Cleaned("_unclassified")
	assert.False(t, ok)
	_, ok = mp.Cleaned("x")
	assert.False(t, ok)
}

func TestCleanColumnsRoundTripsSurvivors(t *testing.T) {
	originals := []string{"Bacteroides fragilis", "[Eubacterium] rectale", "E. coli", "_hidden", "Q", "Akkermansia"}
	m := &models.FeatureMatrix{SampleIDs: []string{"s"}}
	for range originals {
		m.Data = append(m.Data, []float64{1})
	}
	m.Columns = originals

	cleaned, mp := CleanColumns(m)
	assert.Len(t, cleaned.Columns, 4)
	for _, c := range cleaned.Columns {
		orig := mp.Original(c)
		back, ok := mp.Cleaned(orig)
		require.True(t, ok)
		assert.Equal(t, c, back)
	}
}

func TestCleanColumnsDropsNamesThatSanitizeToNothing(t *testing.T) {
	m := &models.FeatureMatrix{
		SampleIDs: []string{"s"},
		Columns:   []string{"αβ", "ok"},
		Data:      [][]float64{{1}, {2}},
	}
	cleaned, mp := CleanColumns(m)
	assert.Equal(t, []string{"ok"}, cleaned.Columns)
	assert.Equal(t, 1, mp.Len())
}

func TestMergeAndFormatIsInnerJoin(t *testing.T) {
	meta := &models.MetadataTable{
		Columns: []string{"class", "pipeline_data_id"},
		Rows: []models.MetadataRow{
			{Values: map[string]string{"class": "A", "pipeline_data_id": "1"}},
			{Values: map[string]string{"class": "B", "pipeline_data_id": "2"}},
			{Values: map[string]string{"class": "A", "pipeline_data_id": "only-meta"}},
		},
	}
	m := &models.FeatureMatrix{
		SampleIDs: []string{"2", "only-matrix", "1"},
		Columns:   []string{"f1"},
		Data:      [][]float64{{0.5, 9, 1.25}},
	}
	out, err := MergeAndFormat(meta, m)
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"class", "A", "B"},
		{"pipeline_data_id", "1", "2"},
		{"f1", "1.250000", "0.500000"},
	}, out.Rows)
}

func TestMergeAndFormatWithoutOverlapFails(t *testing.T) {
	meta := &models.MetadataTable{
		Columns: []string{"pipeline_data_id"},
		Rows:    []models.MetadataRow{{Values: map[string]string{"pipeline_data_id": "a"}}},
	}
	m := &models.FeatureMatrix{SampleIDs: []string{"b"}, Columns: []string{"f"}, Data: [][]float64{{1}}}
	_, err := MergeAndFormat(meta, m)
	var inv *models.InvalidInputError
	assert.True(t, errors.As(err, &inv))
}

func TestRowParams(t *testing.T) {
	defaults := models.ToolParams{SubjectRow: 2, ClassRow: 1, NormValue: 1000000}

	cases := []struct {
		name    string
		columns []string
		want    models.ToolParams
		wantErr bool
	}{
		{
			name:    "default layout",
			columns: []string{"class", "subject", "pipeline_data_id"},
			want:    defaults,
		},
		{
			name:    "reordered",
			columns: []string{"pipeline_data_id", "class", "subject"},
			want:    models.ToolParams{SubjectRow: 3, ClassRow: 2, NormValue: 1000000},
		},
		{
			name:    "id row stands in for subject",
			columns: []string{"class", "pipeline_data_id", "age"},
			want:    models.ToolParams{SubjectRow: 2, ClassRow: 1, NormValue: 1000000},
		},
		{
			name:    "id row first without subject",
			columns: []string{"pipeline_data_id", "class"},
			want:    models.ToolParams{SubjectRow: 1, ClassRow: 2, NormValue: 1000000},
		},
		{
			name:    "no class column collides with id row",
			columns: []string{"pipeline_data_id", "group"},
			wantErr: true,
		},
		{
			name:    "subject column wins over id row",
			columns: []string{"age", "pipeline_data_id", "class", "subject"},
			want:    models.ToolParams{SubjectRow: 4, ClassRow: 3, NormValue: 1000000},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RowParams(tc.columns, defaults)
			if tc.wantErr {
				var inv *models.InvalidInputError
				assert.True(t, errors.As(err, &inv))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
