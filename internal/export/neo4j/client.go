package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/teamscope/backend/internal/analytics"
	"github.com/teamscope/backend/internal/metrics"
	"github.com/teamscope/backend/pkg/circuitbreaker"
	"github.com/teamscope/backend/pkg/logger"
	"github.com/teamscope/backend/pkg/retry"
)

// Client mirrors analyzed networks into a Neo4j graph for ad hoc Cypher
// exploration. The export is a full replace per survey.
type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri))

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) ExportNetwork(ctx context.Context, surveyID string, view *analytics.NetworkView) error {
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			return c.writeNetwork(ctx, surveyID, view)
		})
	})

	if err != nil {
		metrics.NetworkExports.WithLabelValues("error").Inc()
		return err
	}

	metrics.NetworkExports.WithLabelValues("ok").Inc()
	logger.Info("Network exported",
		zap.String("survey_id", surveyID),
		zap.Int("nodes", len(view.Nodes)),
		zap.Int("links", len(view.Links)),
	)
	return nil
}

func (c *Client) writeNetwork(ctx context.Context, surveyID string, view *analytics.NetworkView) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx,
			`MATCH (m:Member {survey_id: $survey_id}) DETACH DELETE m`,
			map[string]interface{}{"survey_id": surveyID},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to clear previous export: %w", err)
		}

		for _, node := range view.Nodes {
			_, err := tx.Run(ctx,
				`MERGE (m:Member {survey_id: $survey_id, member_id: $member_id})
				 SET m.name = $name,
				     m.department = $department,
				     m.influence_group = $group,
				     m.centrality = $centrality,
				     m.influence = $influence`,
				map[string]interface{}{
					"survey_id":  surveyID,
					"member_id":  node.ID,
					"name":       node.Name,
					"department": node.Department,
					"group":      node.Group,
					"centrality": node.CentralityScore,
					"influence":  node.InfluenceScore,
				},
			)
			if err != nil {
				return nil, fmt.Errorf("failed to merge member node: %w", err)
			}
		}

		for _, link := range view.Links {
			_, err := tx.Run(ctx,
				`MATCH (a:Member {survey_id: $survey_id, member_id: $source})
				 MATCH (b:Member {survey_id: $survey_id, member_id: $target})
				 MERGE (a)-[r:CONNECTED]->(b)
				 SET r.weight = $weight, r.strength = $strength`,
				map[string]interface{}{
					"survey_id": surveyID,
					"source":    link.Source,
					"target":    link.Target,
					"weight":    link.Weight,
					"strength":  link.Strength,
				},
			)
			if err != nil {
				return nil, fmt.Errorf("failed to merge connection: %w", err)
			}
		}

		return nil, nil
	})

	return err
}
