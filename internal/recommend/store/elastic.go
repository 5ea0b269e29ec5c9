package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"manhwa-recommender/internal/common/errors"
	"manhwa-recommender/internal/common/logger"
	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/query"
)

// Documents are the JSON form of models.Manhwa.
var esFields = map[query.Field]string{
	query.FieldID:        "id",
	query.FieldGenres:    "genres",
	query.FieldTags:      "tags",
	query.FieldArtStyles: "artStyle",
	query.FieldIsActive:  "isActive",
	query.FieldViewCount: "popularity.viewCount",
	query.FieldUpdatedAt: "updatedAt",
	query.FieldRating:    "popularity.rating",
}

const catalogMapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "keyword"},
      "title":       {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "description": {"type": "text"},
      "author":      {"type": "keyword"},
      "artist":      {"type": "keyword"},
      "status":      {"type": "keyword"},
      "genres":      {"type": "keyword"},
      "tags":        {"type": "keyword"},
      "artStyle":    {"type": "keyword"},
      "isActive":    {"type": "boolean"},
      "popularity": {
        "properties": {
          "viewCount":     {"type": "long"},
          "favoriteCount": {"type": "long"},
          "rating":        {"type": "float"},
          "ratingCount":   {"type": "long"}
        }
      },
      "createdAt": {"type": "date"},
      "updatedAt": {"type": "date"}
    }
  }
}`

// ElasticCatalog answers catalog queries from the search index.
type ElasticCatalog struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewElasticCatalog(client *elasticsearch.Client, index string, log logger.Logger) *ElasticCatalog {
	if index == "" {
		index = "manhwas"
	}
	return &ElasticCatalog{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "elastic-catalog", "index": index}),
	}
}

func (e *ElasticCatalog) Index() string {
	return e.index
}

func (e *ElasticCatalog) Find(ctx context.Context, q query.Catalog) ([]models.Manhwa, error) {
	body, err := buildSearchBody(q)
	if err != nil {
		return nil, errors.NewInvalidRequestError(err.Error())
	}

	req := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
	}
	if q.Offset > 0 {
		from := q.Offset
		req.From = &from
	}
	if q.Limit > 0 {
		size := q.Limit
		req.Size = &size
	}

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, e.transportError(ctx, "search", err)
	}
	defer res.Body.Close()

	if err := e.responseError(res, "search"); err != nil {
		return nil, err
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.Manhwa `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.NewSearchQueryFailedError("search", fmt.Errorf("decode response: %w", err))
	}

	items := make([]models.Manhwa, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		items = append(items, h.Source)
	}
	return items, nil
}

func (e *ElasticCatalog) Count(ctx context.Context, q query.Catalog) (int64, error) {
	clause, err := buildBoolQuery(q)
	if err != nil {
		return 0, errors.NewInvalidRequestError(err.Error())
	}
	body, _ := json.Marshal(map[string]interface{}{"query": clause})

	req := esapi.CountRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return 0, e.transportError(ctx, "count", err)
	}
	defer res.Body.Close()

	if err := e.responseError(res, "count"); err != nil {
		return 0, err
	}

	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, errors.NewSearchQueryFailedError("count", fmt.Errorf("decode response: %w", err))
	}
	return parsed.Count, nil
}

// EnsureIndex creates the index with the catalog mapping when missing.
func (e *ElasticCatalog) EnsureIndex(ctx context.Context) (bool, error) {
	exists, err := esapi.IndicesExistsRequest{Index: []string{e.index}}.Do(ctx, e.client)
	if err != nil {
		return false, e.transportError(ctx, "index exists", err)
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return false, nil
	}

	res, err := esapi.IndicesCreateRequest{
		Index: e.index,
		Body:  strings.NewReader(catalogMapping),
	}.Do(ctx, e.client)
	if err != nil {
		return false, e.transportError(ctx, "create index", err)
	}
	defer res.Body.Close()

	if err := e.responseError(res, "create index"); err != nil {
		return false, err
	}
	e.logger.Info("index created", nil)
	return true, nil
}

// BulkIndex upserts items by id and returns how many the cluster accepted.
func (e *ElasticCatalog) BulkIndex(ctx context.Context, items []models.Manhwa) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, m := range items {
		meta := map[string]interface{}{"index": map[string]interface{}{"_index": e.index, "_id": m.ID}}
		if err := enc.Encode(meta); err != nil {
			return 0, errors.NewPayloadInvalidError(err.Error())
		}
		if err := enc.Encode(m); err != nil {
			return 0, errors.NewPayloadInvalidError(err.Error())
		}
	}

	res, err := esapi.BulkRequest{Body: &buf}.Do(ctx, e.client)
	if err != nil {
		return 0, e.transportError(ctx, "bulk", err)
	}
	defer res.Body.Close()

	if err := e.responseError(res, "bulk"); err != nil {
		return 0, err
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, errors.NewSearchQueryFailedError("bulk", fmt.Errorf("decode response: %w", err))
	}

	indexed := 0
	for _, item := range parsed.Items {
		for _, r := range item {
			if r.Error == nil && r.Status < 300 {
				indexed++
				continue
			}
			if r.Error != nil {
				e.logger.Warn("bulk item rejected", map[string]interface{}{
					"id":     r.ID,
					"type":   r.Error.Type,
					"reason": r.Error.Reason,
				})
			}
		}
	}
	return indexed, nil
}

func (e *ElasticCatalog) transportError(ctx context.Context, op string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.NewSearchTimeoutError(op)
	}
	return errors.NewElasticsearchConnectionFailedError(fmt.Errorf("%s: %w", op, err))
}

func (e *ElasticCatalog) responseError(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	if res.StatusCode == http.StatusNotFound {
		return errors.NewIndexNotFoundError(e.index)
	}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return errors.NewSearchQueryFailedError(op, fmt.Errorf("%s: %s", res.Status(), strings.TrimSpace(string(raw))))
}

func buildSearchBody(q query.Catalog) ([]byte, error) {
	clause, err := buildBoolQuery(q)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"query":            clause,
		"track_total_hits": true,
	}
	if len(q.Sort) > 0 {
		sorts := make([]map[string]interface{}, 0, len(q.Sort))
		for _, s := range q.Sort {
			order := "asc"
			if s.Desc {
				order = "desc"
			}
			sorts = append(sorts, map[string]interface{}{esFields[s.Field]: map[string]string{"order": order}})
		}
		body["sort"] = sorts
	}
	return json.Marshal(body)
}

func buildBoolQuery(q query.Catalog) (map[string]interface{}, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	filter := []interface{}{}
	mustNot := []interface{}{}
	for _, f := range q.All {
		clause, negate := esClause(f)
		if negate {
			mustNot = append(mustNot, clause)
		} else {
			filter = append(filter, clause)
		}
	}

	if len(q.Any) > 0 {
		should := make([]interface{}, 0, len(q.Any))
		for _, f := range q.Any {
			clause, negate := esClause(f)
			if negate {
				clause = map[string]interface{}{"bool": map[string]interface{}{"must_not": []interface{}{clause}}}
			}
			should = append(should, clause)
		}
		filter = append(filter, map[string]interface{}{
			"bool": map[string]interface{}{"should": should, "minimum_should_match": 1},
		})
	}

	boolQuery := map[string]interface{}{}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	if len(mustNot) > 0 {
		boolQuery["must_not"] = mustNot
	}
	if len(boolQuery) == 0 {
		return map[string]interface{}{"match_all": map[string]interface{}{}}, nil
	}
	return map[string]interface{}{"bool": boolQuery}, nil
}

// esClause returns the positive clause for f and whether it must be negated.
func esClause(f query.Filter) (map[string]interface{}, bool) {
	field := esFields[f.Field]
	switch f.Op {
	case query.OpEq:
		return map[string]interface{}{"term": map[string]interface{}{field: f.Value}}, false
	case query.OpNotIn:
		return map[string]interface{}{"terms": map[string]interface{}{field: f.Values}}, true
	default:
		return map[string]interface{}{"terms": map[string]interface{}{field: f.Values}}, false
	}
}
