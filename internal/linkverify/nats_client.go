package linkverify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/linkscan/internal/logfields"
)

// DefaultSubject is where broken link events are published.
const DefaultSubject = "linkscan.broken_links"

// NATSOptions configures the NATS connection.
type NATSOptions struct {
	URL     string
	Subject string
	Stream  string
	Name    string
}

// streamPublisher is the subset of jetstream.JetStream the client uses.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSClient publishes broken link events over JetStream and hands out
// key-value buckets for shared scan progress.
type NATSClient struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	pub     streamPublisher
	subject string
}

// NewNATSClient connects and makes sure the event stream exists.
func NewNATSClient(ctx context.Context, opts NATSOptions) (*NATSClient, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	if opts.Name == "" {
		opts.Name = "linkscan"
	}

	conn, err := nats.Connect(opts.URL, nats.Name(opts.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if opts.Stream != "" {
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_, err = js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
			Name:      opts.Stream,
			Subjects:  []string{opts.Subject},
			Retention: jetstream.LimitsPolicy,
			MaxAge:    30 * 24 * time.Hour,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to ensure stream %s: %w", opts.Stream, err)
		}
	}

	slog.Info("NATS client initialized", logfields.URL(opts.URL), slog.String("subject", opts.Subject))
	return &NATSClient{conn: conn, js: js, pub: js, subject: opts.Subject}, nil
}

// PublishBrokenLink publishes event, filling in its id and timestamp.
func (c *NATSClient) PublishBrokenLink(ctx context.Context, event *BrokenLinkEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := c.pub.Publish(ctx, c.subject, data, jetstream.WithMsgID(event.EventID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	slog.Debug("Published broken link event", logfields.URL(event.TargetURL), logfields.SourceURL(event.SourceURL))
	return nil
}

// KeyValue returns the named bucket, creating it when missing.
func (c *NATSClient) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	if c.js == nil {
		return nil, fmt.Errorf("jetstream not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if kv, err := c.js.KeyValue(ctx, bucket); err == nil {
		return kv, nil
	}
	kv, err := c.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "LinkScan scan progress",
		History:     1,
		TTL:         ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create KV bucket %s: %w", bucket, err)
	}
	slog.Info("Created KV bucket", slog.String("bucket", bucket))
	return kv, nil
}

// Close closes the NATS connection.
func (c *NATSClient) Close() error {
	if c.conn != nil {
		return c.conn.Drain()
	}
	return nil
}
