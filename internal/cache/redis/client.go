package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/teamscope/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func snapshotKey(surveyID, snapshotType string) string {
	return fmt.Sprintf("snapshot:%s:%s", surveyID, snapshotType)
}

func (c *Client) SetSnapshot(ctx context.Context, surveyID, snapshotType string, data interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	err = c.client.Set(ctx, snapshotKey(surveyID, snapshotType), payload, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set snapshot cache: %w", err)
	}

	logger.Debug("Snapshot cached",
		zap.String("survey_id", surveyID),
		zap.String("snapshot_type", snapshotType),
		zap.Duration("ttl", ttl),
	)
	return nil
}

func (c *Client) GetSnapshot(ctx context.Context, surveyID, snapshotType string, out interface{}) (bool, error) {
	data, err := c.client.Get(ctx, snapshotKey(surveyID, snapshotType)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get snapshot cache: %w", err)
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	logger.Debug("Snapshot cache hit",
		zap.String("survey_id", surveyID),
		zap.String("snapshot_type", snapshotType),
	)
	return true, nil
}

// InvalidateSurvey drops every cached snapshot for one survey. Called
// when a new response lands so the next read recomputes.
func (c *Client) InvalidateSurvey(ctx context.Context, surveyID string) error {
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("snapshot:%s:*", surveyID), 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Debug("Survey snapshots invalidated", zap.String("survey_id", surveyID))
	return nil
}
