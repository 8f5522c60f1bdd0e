package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"churn-workers/internal/churn/features"
)

// modelArtifact is the exported form of a trained logistic regression.
type modelArtifact struct {
	Version      string    `json:"version"`
	FeatureNames []string  `json:"feature_names"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	Encoding     *struct {
		GenderFemale *float64 `json:"gender_female"`
	} `json:"encoding,omitempty"`
}

// LogisticModel scores in-process: sigmoid(intercept + w·x).
type LogisticModel struct {
	Version      string
	coefficients features.Vector
	intercept    float64
}

// LoadLogisticModel reads a JSON model artifact from path.
func LoadLogisticModel(path string) (*LogisticModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()
	return ParseLogisticModel(f)
}

// ParseLogisticModel decodes an artifact and checks it was trained on the
// canonical feature order and gender encoding.
func ParseLogisticModel(r io.Reader) (*LogisticModel, error) {
	var a modelArtifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}

	if len(a.FeatureNames) != features.Size {
		return nil, fmt.Errorf("model has %d feature names, want %d", len(a.FeatureNames), features.Size)
	}
	for i, name := range a.FeatureNames {
		if name != features.Canonical[i].Column {
			return nil, fmt.Errorf("model feature %d is %q, want %q", i, name, features.Canonical[i].Column)
		}
	}
	if len(a.Coefficients) != features.Size {
		return nil, fmt.Errorf("model has %d coefficients, want %d", len(a.Coefficients), features.Size)
	}
	if a.Encoding != nil && a.Encoding.GenderFemale != nil && *a.Encoding.GenderFemale != 1 {
		return nil, fmt.Errorf("model encodes Female as %v, this encoder emits 1", *a.Encoding.GenderFemale)
	}

	m := &LogisticModel{Version: a.Version, intercept: a.Intercept}
	for i, c := range a.Coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("model coefficient %d is not finite", i)
		}
		m.coefficients[i] = c
	}
	return m, nil
}

func (m *LogisticModel) Name() string { return "model" }

// CacheID covers the weights as well as the version, so a retrained
// artifact shipped under an unchanged version still gets its own entries.
func (m *LogisticModel) CacheID() string {
	h := sha256.New()
	var buf [8]byte
	for _, c := range m.coefficients {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(c))
		h.Write(buf[:])
	}
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(m.intercept))
	h.Write(buf[:])
	return "model:" + m.Version + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

func (m *LogisticModel) Score(ctx context.Context, v features.Vector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	z := m.intercept
	for i := range v {
		z += m.coefficients[i] * v[i]
	}
	return 1 / (1 + math.Exp(-z)), nil
}
