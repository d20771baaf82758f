package client

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"alerto-service/internal/config"
	"alerto-service/internal/util"
)

// FCMClient wraps the Firebase Cloud Messaging client. It is the only
// component that talks to the push provider.
type FCMClient struct {
	client *messaging.Client
	config *config.FCMConfig
}

func NewFCMClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*FCMClient, error) {
	fcmConfig := cfg.FCM

	var opts []option.ClientOption
	if fcmConfig.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(fcmConfig.CredentialsFile))
	}

	var appConfig *firebase.Config
	if fcmConfig.ProjectID != "" {
		appConfig = &firebase.Config{ProjectID: fcmConfig.ProjectID}
	}

	app, err := firebase.NewApp(ctx, appConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize messaging client: %w", err)
	}

	util.Info("FCM client initialized",
		zap.String("project_id", fcmConfig.ProjectID),
		zap.Bool("credentials_file", fcmConfig.CredentialsFile != ""))

	return &FCMClient{
		client: client,
		config: &fcmConfig,
	}, nil
}

// Send delivers a single message (topic or token addressed) and returns the
// provider message ID
func (c *FCMClient) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	messageID, err := c.client.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return messageID, nil
}

// SendEach submits a batch of token-addressed messages. Per-message failures
// are reported in the batch response, not as an error.
func (c *FCMClient) SendEach(ctx context.Context, msgs []*messaging.Message) (*messaging.BatchResponse, error) {
	resp, err := c.client.SendEach(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to send message batch: %w", err)
	}
	return resp, nil
}

// SubscribeToTopic registers tokens with a topic at the provider
func (c *FCMClient) SubscribeToTopic(ctx context.Context, tokens []string, topic string) error {
	resp, err := c.client.SubscribeToTopic(ctx, tokens, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	if resp.FailureCount > 0 {
		return fmt.Errorf("provider rejected %d of %d topic subscriptions: %s",
			resp.FailureCount, len(tokens), topicErrorReason(resp))
	}
	return nil
}

// UnsubscribeFromTopic removes tokens from a topic at the provider
func (c *FCMClient) UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) error {
	resp, err := c.client.UnsubscribeFromTopic(ctx, tokens, topic)
	if err != nil {
		return fmt.Errorf("failed to unsubscribe from topic %s: %w", topic, err)
	}
	if resp.FailureCount > 0 {
		return fmt.Errorf("provider rejected %d of %d topic unsubscriptions: %s",
			resp.FailureCount, len(tokens), topicErrorReason(resp))
	}
	return nil
}

func topicErrorReason(resp *messaging.TopicManagementResponse) string {
	if len(resp.Errors) == 0 {
		return "unknown"
	}
	return resp.Errors[0].Reason
}
