package csvio

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"churn-workers/internal/churn/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawCSV = `customerID,gender,SeniorCitizen,Partner,Dependents,tenure,PhoneService,PaperlessBilling,MonthlyCharges,TotalCharges,MultipleLines,InternetService,PaymentMethod
7590-VHVEG,Female,0,Yes,No,1,No,Yes,29.85,29.85,No,DSL,Electronic check
5575-GNVDE,Male,0,No,No,34,Yes,No,56.95,1889.5,No,DSL,Mailed check
3668-QPYBK,Male,0,No,No,2,Yes,Yes,53.85, ,No,DSL,Mailed check
`

func p(f float64) *float64 { return &f }

func TestRead_Raw(t *testing.T) {
	tbl, err := Read(strings.NewReader(rawCSV))
	require.NoError(t, err)

	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, "Female", tbl.Rows[0]["gender"])
	assert.Equal(t, "Mailed check", tbl.Rows[1]["PaymentMethod"])
	assert.Equal(t, features.ModeRaw, DetectMode(tbl.Header))
}

func TestRead_BOMAndBlankLines(t *testing.T) {
	tbl, err := Read(strings.NewReader("\ufeffgender,tenure\nMale,3\n,\nFemale,4\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"gender", "tenure"}, tbl.Header)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "4", tbl.Rows[1]["tenure"])
}

func TestRead_RaggedRowLeavesCellsOut(t *testing.T) {
	tbl, err := Read(strings.NewReader("gender,tenure,MonthlyCharges\nMale,3\n"))
	require.NoError(t, err)
	_, ok := tbl.Rows[0]["MonthlyCharges"]
	assert.False(t, ok)
}

func TestRead_Empty(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	assert.Error(t, err)
}

func TestResolveMode(t *testing.T) {
	encodedHeader := append([]string{"customerID"}, features.Columns()...)

	mode, err := ResolveMode("auto", encodedHeader)
	require.NoError(t, err)
	assert.Equal(t, features.ModeEncoded, mode)

	mode, err = ResolveMode("", []string{"gender", "tenure"})
	require.NoError(t, err)
	assert.Equal(t, features.ModeRaw, mode)

	mode, err = ResolveMode("raw", encodedHeader)
	require.NoError(t, err)
	assert.Equal(t, features.ModeRaw, mode)

	partial := features.Columns()[:17]
	_, err = ResolveMode("encoded", partial)
	var encErr *features.EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, features.KindMissingFeatureColumn, encErr.Kind)
	assert.Equal(t, []string{"Senior_Fiber", "HighRisk"}, encErr.Fields)

	_, err = ResolveMode("parquet", encodedHeader)
	assert.Error(t, err)
}

func TestWrite_AppendsProbability(t *testing.T) {
	tbl, err := Read(strings.NewReader(rawCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	results := []Result{
		{Probability: p(0.62)},
		{Probability: p(0.05)},
		{Err: errors.New("scoring unavailable")},
	}
	require.NoError(t, Write(&buf, tbl, results, true))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasSuffix(lines[0], ",Churn Probability,Error"))
	assert.Equal(t, "7590-VHVEG,Female,0,Yes,No,1,No,Yes,29.85,29.85,No,DSL,Electronic check,0.62,", lines[1])
	assert.True(t, strings.HasSuffix(lines[3], ",,scoring unavailable"))
}

func TestWrite_RoundTripKeepsInputColumns(t *testing.T) {
	tbl, err := Read(strings.NewReader(rawCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tbl, []Result{{Probability: p(0.1)}, {Probability: p(0.2)}, {Probability: p(0.3)}}, false))

	again, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, append(append([]string{}, tbl.Header...), ProbabilityColumn), again.Header)
	for i, row := range tbl.Rows {
		for col, v := range row {
			assert.Equal(t, v, again.Rows[i][col], "row %d col %s", i, col)
		}
	}
	assert.Equal(t, "0.3", again.Rows[2][ProbabilityColumn])
}

func TestWrite_LengthMismatch(t *testing.T) {
	tbl, err := Read(strings.NewReader(rawCSV))
	require.NoError(t, err)
	assert.Error(t, Write(&bytes.Buffer{}, tbl, nil, false))
}
