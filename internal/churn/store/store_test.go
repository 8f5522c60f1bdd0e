package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"churn-workers/internal/churn/features"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var insertRE = regexp.QuoteMeta("INSERT INTO churn_predictions")

func newMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func samplePrediction() *Prediction {
	return &Prediction{
		CustomerID:  "7590-VHVEG",
		Source:      "api",
		Probability: 0.81,
		RiskLevel:   "high",
		Features:    features.Vector{1, 1, 0, 0, 24, 1, 1, 90, 2000, 0, 1, 0, 0, 1, 0, 1, 0.045, 1, 1},
	}
}

func TestRepository_Save(t *testing.T) {
	repo, mock := newMock(t)
	p := samplePrediction()

	mock.ExpectExec(insertRE).
		WithArgs(sqlmock.AnyArg(), sql.NullString{String: "7590-VHVEG", Valid: true}, "api", 0.81, "high",
			[]byte(`[1,1,0,0,24,1,1,90,2000,0,1,0,0,1,0,1,0.045,1,1]`), []byte(`[]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Save(context.Background(), p))
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.False(t, p.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SaveWithoutCustomer(t *testing.T) {
	repo, mock := newMock(t)
	p := samplePrediction()
	p.CustomerID = ""

	mock.ExpectExec(insertRE).
		WithArgs(sqlmock.AnyArg(), sql.NullString{}, "api", 0.81, "high", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Save(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SaveError(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(insertRE).WillReturnError(errors.New("connection reset"))

	err := repo.Save(context.Background(), samplePrediction())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRepository_SaveBatch(t *testing.T) {
	t.Run("commits all rows", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		prep := mock.ExpectPrepare(insertRE)
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := repo.SaveBatch(context.Background(), []*Prediction{samplePrediction(), samplePrediction()})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		prep := mock.ExpectPrepare(insertRE)
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
		prep.ExpectExec().WillReturnError(errors.New("check constraint"))
		mock.ExpectRollback()

		err := repo.SaveBatch(context.Background(), []*Prediction{samplePrediction(), samplePrediction()})
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		repo, mock := newMock(t)
		require.NoError(t, repo.SaveBatch(context.Background(), nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_Latest(t *testing.T) {
	cols := []string{"id", "customer_id", "source", "churn_probability", "risk_level", "features", "warnings", "created_at"}
	id := uuid.New()
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM churn_predictions")).
			WithArgs("7590-VHVEG").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(
				id.String(), "7590-VHVEG", "worker", 0.33, "low",
				[]byte(`[0,0,1,0,5,1,0,20,100,0,0,1,0,0,1,0,0.198,0,0]`),
				[]byte(`[{"kind":"NUMERIC_COERCION_FAILURE","field":"TotalCharges","value":"N/A"}]`),
				created,
			))

		p, err := repo.Latest(context.Background(), "7590-VHVEG")
		require.NoError(t, err)
		assert.Equal(t, id, p.ID)
		assert.Equal(t, 0.33, p.Probability)
		assert.Equal(t, 5.0, p.Features[features.SlotTenure])
		require.Len(t, p.Warnings, 1)
		assert.Equal(t, "TotalCharges", p.Warnings[0].Field)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM churn_predictions")).
			WithArgs("nobody").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.Latest(context.Background(), "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
