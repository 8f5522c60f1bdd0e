// Package store persists churn predictions to Postgres and mirrors them into
// Elasticsearch for search and dashboards.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"churn-workers/internal/churn/features"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a customer has no stored prediction.
var ErrNotFound = errors.New("prediction not found")

// Prediction is one scored customer.
type Prediction struct {
	ID          uuid.UUID          `json:"id"`
	CustomerID  string             `json:"customerId,omitempty"`
	Source      string             `json:"source"`
	Probability float64            `json:"churnProbability"`
	RiskLevel   string             `json:"riskLevel"`
	Features    features.Vector    `json:"-"`
	Warnings    []features.Warning `json:"warnings,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// Repository writes predictions to the churn_predictions table.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const insertPrediction = `
	INSERT INTO churn_predictions
		(id, customer_id, source, churn_probability, risk_level, features, warnings, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// Save inserts one prediction.
func (r *Repository) Save(ctx context.Context, p *Prediction) error {
	args, err := insertArgs(p)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, insertPrediction, args...); err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

// SaveBatch inserts predictions in one transaction. Either all rows are
// stored or none.
func (r *Repository) SaveBatch(ctx context.Context, ps []*Prediction) error {
	if len(ps) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertPrediction)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range ps {
		args, err := insertArgs(p)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert prediction %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertArgs(p *Prediction) ([]interface{}, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	featuresJSON, err := json.Marshal(p.Features.Slice())
	if err != nil {
		return nil, fmt.Errorf("marshal features: %w", err)
	}
	warnings := p.Warnings
	if warnings == nil {
		warnings = []features.Warning{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return nil, fmt.Errorf("marshal warnings: %w", err)
	}
	return []interface{}{
		p.ID, nullString(p.CustomerID), p.Source, p.Probability, p.RiskLevel,
		featuresJSON, warningsJSON, p.CreatedAt,
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Latest returns the most recent prediction for a customer.
func (r *Repository) Latest(ctx context.Context, customerID string) (*Prediction, error) {
	const q = `
		SELECT id, customer_id, source, churn_probability, risk_level, features, warnings, created_at
		FROM churn_predictions
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var (
		p            Prediction
		customer     sql.NullString
		featuresJSON []byte
		warningsJSON []byte
	)
	err := r.db.QueryRowContext(ctx, q, customerID).Scan(
		&p.ID, &customer, &p.Source, &p.Probability, &p.RiskLevel,
		&featuresJSON, &warningsJSON, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest prediction: %w", err)
	}
	p.CustomerID = customer.String

	var slots []float64
	if err := json.Unmarshal(featuresJSON, &slots); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if len(slots) != features.Size {
		return nil, fmt.Errorf("stored prediction has %d features, want %d", len(slots), features.Size)
	}
	copy(p.Features[:], slots)

	if len(warningsJSON) > 0 {
		if err := json.Unmarshal(warningsJSON, &p.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings: %w", err)
		}
	}
	return &p, nil
}
