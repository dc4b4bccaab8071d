package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/stitchwell-backend/pkg/config"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
)

// ErrUnknownTopic is returned by Send for a topic the client was not
// configured with. Retrying cannot fix it.
var ErrUnknownTopic = errors.New("pubsub topic not configured")

// Client publishes to the order and payment topics. Publishers are created
// lazily and reused so their batching state survives between sends.
type Client struct {
	client    *pubsub.Client
	projectID string
	topics    map[string]string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and fails when a configured topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	topics := map[string]string{}
	for _, name := range []string{cfg.OrdersTopic, cfg.PaymentsTopic} {
		if name = strings.TrimSpace(name); name != "" {
			topics[name] = resourceName(projectID, name)
		}
	}
	if len(topics) == 0 {
		return nil, errors.New("at least one pubsub topic is required")
	}

	raw, err := pubsub.NewClient(ctx, projectID, credentialOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:     raw,
		projectID:  projectID,
		topics:     topics,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	logg.Info(logg.WithField(ctx, "topics", len(topics)), "pubsub client initialized")
	return c, nil
}

// Send publishes one message and waits for the server ack.
func (c *Client) Send(ctx context.Context, topic string, data []byte, attrs map[string]string) error {
	pub, err := c.publisher(topic)
	if err != nil {
		return err
	}
	_, err = pub.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	return err
}

func (c *Client) publisher(topic string) (*pubsub.Publisher, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("pubsub client not initialized")
	}
	full, err := c.resolve(topic)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[full]; ok {
		return pub, nil
	}
	pub := c.client.Publisher(full)
	c.publishers[full] = pub
	return pub, nil
}

func (c *Client) resolve(topic string) (string, error) {
	full, ok := c.topics[strings.TrimSpace(topic)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	return full, nil
}

// Ping checks that every configured topic exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for name, full := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("topic %q does not exist", name)
		}
		if err != nil {
			return fmt.Errorf("checking topic %q: %w", name, err)
		}
	}
	return nil
}

// Close flushes pending publishes and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for key, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, key)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// credentialOptions prefers inline JSON, then a key file, then application
// default credentials.
func credentialOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.CredentialsFile) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.CredentialsFile)}
	}
	return nil
}

func resourceName(projectID, topic string) string {
	if strings.HasPrefix(topic, "projects/") && strings.Contains(topic, "/topics/") {
		return topic
	}
	return fmt.Sprintf("projects/%s/topics/%s", projectID, topic)
}
