package client

import (
	"context"
	"encoding/json"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// PubSubClient wraps the Google Cloud Pub/Sub client for attempt events.
type PubSubClient struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubClient creates a new Pub/Sub client.
func NewPubSubClient(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*PubSubClient, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, err
	}

	return &PubSubClient{
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

// Close closes the client.
func (c *PubSubClient) Close() {
	if c.topic != nil {
		c.topic.Stop()
	}
	if c.client != nil {
		c.client.Close()
	}
}

// Publish publishes a JSON message with attributes and waits for the server
// to acknowledge it.
func (c *PubSubClient) Publish(ctx context.Context, data any, attrs map[string]string) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	result := c.topic.Publish(ctx, &pubsub.Message{
		Data:       jsonData,
		Attributes: attrs,
	})

	_, err = result.Get(ctx)
	return err
}
