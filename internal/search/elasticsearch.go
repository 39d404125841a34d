package search

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/foundry/services/scheduling/config"
	"example.com/foundry/services/scheduling/internal/models"
	"example.com/foundry/services/scheduling/internal/planner"
)

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexPlanRun indexes a completed planning run together with its weekly
// load summary so dashboards can query run history without hitting the
// primary database.
func (c *ElasticClient) IndexPlanRun(ctx context.Context, run *models.PlanRun, weeks []planner.WeekLoad) error {
	log.Info().Str("run_id", run.ID.String()).Msg("indexing plan run")

	weekDocs := make([]map[string]interface{}, 0, len(weeks))
	for _, w := range weeks {
		weekDocs = append(weekDocs, map[string]interface{}{
			"year":        w.Year,
			"week":        w.Week,
			"molds":       w.Molds,
			"tons":        w.Tons,
			"late_orders": w.LateOrders,
		})
	}

	runDoc := map[string]interface{}{
		"id":              run.ID.String(),
		"scenario_id":     run.ScenarioID.String(),
		"created_at":      run.CreatedAt,
		"orders_planned":  run.OrdersPlanned,
		"orders_late":     run.OrdersLate,
		"orders_skipped":  run.OrdersSkipped,
		"orders_unplaced": run.OrdersUnplaced,
		"weekly_load":     weekDocs,
	}

	docJson, err := json.Marshal(runDoc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal plan run document")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: run.ID.String(),
		Body:       bytes.NewReader(docJson),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}

	log.Info().Str("run_id", run.ID.String()).Msg("plan run indexed successfully")
	return nil
}

// SearchPlanRuns searches indexed plan runs with the given query.
func (c *ElasticClient) SearchPlanRuns(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error) {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return nil, errors.Errorf("Elasticsearch search error: %v", e)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected search result format")
	}

	hitsArray, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, errors.New("unexpected hits format")
	}

	var docs []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}

		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}

		docs = append(docs, source)
	}

	return docs, nil
}
