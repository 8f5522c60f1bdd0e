package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":               {"type": "keyword"},
      "customerId":       {"type": "keyword"},
      "source":           {"type": "keyword"},
      "churnProbability": {"type": "double"},
      "riskLevel":        {"type": "keyword"},
      "features":         {"type": "object"},
      "warnings":         {"type": "object", "enabled": false},
      "createdAt":        {"type": "date"}
    }
  }
}`

// Indexer writes predictions to an Elasticsearch index.
type Indexer struct {
	es    *elasticsearch.Client
	index string
}

func NewIndexer(es *elasticsearch.Client, index string) *Indexer {
	return &Indexer{es: es, index: index}
}

// indexDoc flattens the vector into named fields so dashboards can filter
// on e.g. features.HighRisk.
type indexDoc struct {
	*Prediction
	Features map[string]float64 `json:"features"`
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := i.es.Indices.Exists([]string{i.index}, i.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = i.es.Indices.Create(i.index,
		i.es.Indices.Create.WithContext(ctx),
		i.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index: %s", readError(res))
	}
	return nil
}

// Index stores one prediction, keyed by its ID.
func (i *Indexer) Index(ctx context.Context, p *Prediction) error {
	body, err := json.Marshal(indexDoc{Prediction: p, Features: p.Features.Map()})
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: p.ID.String(),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.es)
	if err != nil {
		return fmt.Errorf("index prediction: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index prediction: %s", readError(res))
	}
	return nil
}

func readError(res *esapi.Response) string {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	return fmt.Sprintf("%s %s", res.Status(), strings.TrimSpace(string(b)))
}
