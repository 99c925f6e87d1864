package eligibility

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
)

var (
	ErrFeatureMismatch = errors.New("FEATURE_MISMATCH")
	ErrInvalidModel    = errors.New("INVALID_MODEL")
)

// Classifier predicts 1 (approve) or anything else (decline) from
// [income, family_size].
type Classifier interface {
	Predict(features []float64) (int, error)
}

// LogisticModel is a linear model exported as JSON:
//
//	{"coefficients": [w_income, w_family], "intercept": b, "threshold": 0.5}
type LogisticModel struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	Threshold    float64   `json:"threshold"`
}

func (m *LogisticModel) Predict(features []float64) (int, error) {
	if len(features) != len(m.Coefficients) {
		return 0, fmt.Errorf("%w: model expects %d features, got %d", ErrFeatureMismatch, len(m.Coefficients), len(features))
	}
	z := m.Intercept
	for i, f := range features {
		z += m.Coefficients[i] * f
	}
	p := 1 / (1 + math.Exp(-z))
	if math.IsNaN(p) {
		return 0, fmt.Errorf("%w: non-finite score", ErrInvalidModel)
	}
	if p >= m.Threshold {
		return 1, nil
	}
	return 0, nil
}

// LoadClassifier reads a model artifact. An empty path or a missing file means
// no model and is not an error.
func LoadClassifier(path string) (Classifier, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}

	var m LogisticModel
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if len(m.Coefficients) != 2 {
		return nil, fmt.Errorf("%w: expected 2 coefficients, got %d", ErrInvalidModel, len(m.Coefficients))
	}
	if m.Threshold <= 0 || m.Threshold >= 1 {
		m.Threshold = 0.5
	}
	return &m, nil
}
