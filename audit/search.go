package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const searchIndex = "permit-audit"

// SearchMirror is the Elasticsearch copy of the ledger, fed by the indexer
// from audit.recorded events. It is best-effort and strictly secondary: the
// primary store holds the authoritative ledger, the mirror exists for fast
// filtered search in operational tooling.
type SearchMirror struct {
	esClient *elasticsearch.Client
}

func NewSearchMirror(esURL string) (*SearchMirror, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esURL},
	}
	esClient, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &SearchMirror{esClient: esClient}, nil
}

// Index writes one record into the mirror, keyed by the record ID so replays
// are idempotent.
func (m *SearchMirror) Index(ctx context.Context, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      searchIndex,
		DocumentID: record.ID,
		Body:       strings.NewReader(string(data)),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, m.esClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing document: %s", res.String())
	}

	return nil
}

// Search runs a filtered query against the mirror, newest first.
func (m *SearchMirror) Search(ctx context.Context, filter Filter) ([]*Record, error) {
	must := []interface{}{}

	if !filter.From.IsZero() || !filter.To.IsZero() {
		timeRange := map[string]interface{}{}
		if !filter.From.IsZero() {
			timeRange["gte"] = filter.From.Format(time.RFC3339)
		}
		if !filter.To.IsZero() {
			timeRange["lte"] = filter.To.Format(time.RFC3339)
		}
		must = append(must, map[string]interface{}{
			"range": map[string]interface{}{"timestamp": timeRange},
		})
	}
	if filter.EmployeeID != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"employee_id": filter.EmployeeID},
		})
	}
	if filter.ResourceKind != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"resource_kind": string(filter.ResourceKind)},
		})
	}
	if filter.ResourceID != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"resource_id": filter.ResourceID},
		})
	}
	if filter.Action != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"action": string(filter.Action)},
		})
	}

	size := filter.Limit
	if size <= 0 {
		size = defaultQueryLimit
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
		"sort": []interface{}{
			map[string]interface{}{"timestamp": map[string]interface{}{"order": "desc"}},
		},
		"from": filter.Offset,
		"size": size,
	}

	var buf strings.Builder
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, err
	}

	res, err := m.esClient.Search(
		m.esClient.Search.WithContext(ctx),
		m.esClient.Search.WithIndex(searchIndex),
		m.esClient.Search.WithBody(strings.NewReader(buf.String())),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error searching documents: %s", res.String())
	}

	var rmap map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&rmap); err != nil {
		return nil, err
	}

	hits, ok := rmap["hits"].(map[string]interface{})["hits"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected search response shape")
	}

	records := make([]*Record, len(hits))
	for i, hit := range hits {
		source := hit.(map[string]interface{})["_source"]
		data, err := json.Marshal(source)
		if err != nil {
			return nil, err
		}
		records[i] = &Record{}
		if err := json.Unmarshal(data, records[i]); err != nil {
			return nil, err
		}
	}

	return records, nil
}
