package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"alerto-service/internal/model"
	"alerto-service/internal/util"
)

// SubscriptionRepository is the durable (user, topic) -> token registry.
// At most one row exists per pair; re-subscribing overwrites the token.
type SubscriptionRepository struct {
	client *ScyllaClient
}

func NewSubscriptionRepository(client *ScyllaClient) *SubscriptionRepository {
	return &SubscriptionRepository{client: client}
}

func (r *SubscriptionRepository) Upsert(ctx context.Context, sub model.Subscription) error {
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = time.Now().UTC()
	}

	query := r.client.Prepared.UpsertSubscription.
		Bind(sub.UserID, sub.Topic, sub.Token, sub.SubscribedAt).
		WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to store subscription",
			zap.String("user_id", sub.UserID),
			zap.String("topic", sub.Topic),
			zap.Error(err))
		return fmt.Errorf("failed to store subscription: %w", err)
	}

	util.Info("Subscription stored",
		zap.String("user_id", sub.UserID),
		zap.String("topic", sub.Topic))
	return nil
}

// Delete removes a (user, topic) pair. Deleting an absent pair is not an
// error.
func (r *SubscriptionRepository) Delete(ctx context.Context, userID, topic string) error {
	query := r.client.Prepared.DeleteSubscription.
		Bind(userID, topic).
		WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to delete subscription",
			zap.String("user_id", userID),
			zap.String("topic", topic),
			zap.Error(err))
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	util.Info("Subscription deleted",
		zap.String("user_id", userID),
		zap.String("topic", topic))
	return nil
}

// TokensForUser returns every delivery token the user has registered,
// across all topics. An empty result is not an error.
func (r *SubscriptionRepository) TokensForUser(ctx context.Context, userID string) ([]string, error) {
	query := r.client.Prepared.ListSubscriptions.
		Bind(userID).
		WithContext(ctx)

	iter := query.Iter()

	var (
		tokens       []string
		topic        string
		token        string
		subscribedAt time.Time
	)
	for iter.Scan(&topic, &token, &subscribedAt) {
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	if err := iter.Close(); err != nil && err != gocql.ErrNotFound {
		util.Error("Failed to list subscriptions",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	return tokens, nil
}
