// Package results turns the tool chain output into the submission payload
// and delivers it.
package results

import (
	"encoding/csv"
	"errors"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/feichai0017/lefse-processor/internal/mapping"
	"github.com/feichai0017/lefse-processor/internal/models"
	"github.com/feichai0017/lefse-processor/pkg/converters"
)

// resultFields is the column count of the tool chain result table:
// feature, log_highest_mean, class, lda, p_value.
const resultFields = 5

// Translate reads the result table, restores original feature names and
// drops rows without a class. Values that are not numbers become nil.
func Translate(path string, mp *mapping.Mapping) ([]models.BiomarkerResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.TranslationError{Path: path, Err: err}
	}
	defer f.Close()

	rows, err := converters.ReadTSV(f, resultFields)
	if err != nil {
		te := &models.TranslationError{Path: path, Err: err}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			te.Line = pe.Line
		}
		return nil, te
	}

	out := make([]models.BiomarkerResult, 0, len(rows))
	for _, row := range rows {
		class := strings.TrimSpace(row[2])
		if class == "" {
			continue
		}
		feature := strings.TrimSpace(row[0])
		if mp != nil {
			feature = mp.Original(feature)
		}
		out = append(out, models.BiomarkerResult{
			Feature:        feature,
			LogHighestMean: parseNumber(row[1]),
			Class:          class,
			LDA:            parseNumber(row[3]),
			PValue:         parseNumber(row[4]),
		})
	}
	return out, nil
}

func parseNumber(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
