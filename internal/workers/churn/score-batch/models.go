// internal/workers/churn/score-batch/models.go
package scorebatch

type Input struct {
	Records       []map[string]interface{} `json:"records"`
	Mode          string                   `json:"mode,omitempty"`
	FailurePolicy string                   `json:"failurePolicy,omitempty"`
	IDColumn      string                   `json:"idColumn,omitempty"`
}

type RowResult struct {
	Index            int      `json:"index"`
	CustomerID       string   `json:"customerId,omitempty"`
	ChurnProbability *float64 `json:"churnProbability"`
	Error            string   `json:"error,omitempty"`
	ErrorCode        string   `json:"errorCode,omitempty"`
}

type Output struct {
	Results []RowResult `json:"results"`
	Scored  int         `json:"scored"`
	Failed  int         `json:"failed"`
}

const inputSchema = `{
  "type": "object",
  "required": ["records"],
  "properties": {
    "records":       {"type": "array", "items": {"type": "object"}},
    "mode":          {"type": "string", "enum": ["raw", "encoded", "preprocessed", "pre-encoded"]},
    "failurePolicy": {"type": "string", "enum": ["exclude", "zero-fill"]},
    "idColumn":      {"type": "string"}
  }
}`
