// internal/workers/churn/predict-churn/models.go
package predictchurn

import "churn-workers/internal/churn/features"

// Input carries either raw survey attributes (customer) or an already
// encoded feature row (features).
type Input struct {
	CustomerID string                 `json:"customerId,omitempty"`
	Customer   map[string]interface{} `json:"customer,omitempty"`
	Features   map[string]interface{} `json:"features,omitempty"`
}

type Output struct {
	PredictionID     string             `json:"predictionId"`
	ChurnProbability float64            `json:"churnProbability"`
	RiskLevel        string             `json:"riskLevel"`
	Features         map[string]float64 `json:"features"`
	Warnings         []features.Warning `json:"warnings"`
}

const inputSchema = `{
  "type": "object",
  "properties": {
    "customerId": {"type": "string"},
    "customer":   {"type": "object"},
    "features":   {"type": "object"}
  },
  "anyOf": [
    {"required": ["customer"]},
    {"required": ["features"]}
  ]
}`
