package replay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/strand/types"
)

// NATSReplayerConfig configures a NATSReplayer.
type NATSReplayerConfig struct {
	// StreamName is the JetStream stream holding the payloads.
	// Default: "STRAND_REPLAY"
	StreamName string

	// Subject is the subject payloads are published to.
	// Default: "strand.replay"
	Subject string

	// Consumer is the durable pull consumer shared by every worker.
	// Default: "strand-replay"
	Consumer string

	// MaxAge drops payloads older than this.
	// Default: 24 hours
	MaxAge time.Duration

	// MaxMsgs bounds the stream; publishing to a full stream fails.
	// Default: 1,000,000
	MaxMsgs int64

	// Replicas is the number of stream replicas.
	// Default: 1
	Replicas int

	// MaxDeliver is the number of delivery attempts of a payload.
	// Default: 5
	MaxDeliver int

	// AckWait is how long a fetched payload stays invisible to other workers.
	// Default: 30 seconds
	AckWait time.Duration

	// FetchWait bounds the wait of one Fetch call on an empty stream.
	// Default: 1 second
	FetchWait time.Duration

	// PublishTimeout bounds one Enqueue.
	// Default: 5 seconds
	PublishTimeout time.Duration
}

// DefaultNATSReplayerConfig returns the default configuration.
func DefaultNATSReplayerConfig() NATSReplayerConfig {
	return NATSReplayerConfig{
		StreamName:     "STRAND_REPLAY",
		Subject:        "strand.replay",
		Consumer:       "strand-replay",
		MaxAge:         24 * time.Hour,
		MaxMsgs:        1_000_000,
		Replicas:       1,
		MaxDeliver:     5,
		AckWait:        30 * time.Second,
		FetchWait:      time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// NATSReplayerOption configures a NATSReplayer.
type NATSReplayerOption func(*NATSReplayerConfig)

// WithStreamName sets the JetStream stream name.
func WithStreamName(name string) NATSReplayerOption {
	return func(c *NATSReplayerConfig) {
		c.StreamName = name
	}
}

// WithSubject sets the subject payloads are published to.
func WithSubject(subject string) NATSReplayerOption {
	return func(c *NATSReplayerConfig) {
		c.Subject = subject
	}
}

// WithConsumer sets the durable consumer name.
func WithConsumer(name string) NATSReplayerOption {
	return func(c *NATSReplayerConfig) {
		c.Consumer = name
	}
}

// WithMaxAge sets the maximum age of stored payloads.
func WithMaxAge(d time.Duration) NATSReplayerOption {
	return func(c *NATSReplayerConfig) {
		c.MaxAge = d
	}
}

// WithMaxMsgs sets the maximum number of stored payloads.
func WithMaxMsgs(n int64) NATSReplayerOption {
	return func(c *NATSReplayerConfig) {
		c.MaxMsgs = n
	}
}

// WithReplicas sets the number of stream replicas.
func WithReplicas(n int) NATSReplayerOption {
	return func(c *NATSReplayerConfig) {
		c.Replicas = n
	}
}

// WithMaxDeliver sets the number of delivery attempts of a payload.
//
// Parameters:
//   - n: Delivery attempts, -1 for unlimited
//
// Returns:
//   - NATSReplayerOption: Configuration option
func WithMaxDeliver(n int) NATSReplayerOption {
	return func(c *NATSReplayerConfig) {
		c.MaxDeliver = n
	}
}

// WithAckWait sets how long a fetched payload stays invisible to other workers.
func WithAckWait(d time.Duration) NATSReplayerOption {
	return func(c *NATSReplayerConfig) {
		c.AckWait = d
	}
}

// WithFetchWait sets the maximum wait of one Fetch call.
func WithFetchWait(d time.Duration) NATSReplayerOption {
	return func(c *NATSReplayerConfig) {
		c.FetchWait = d
	}
}

// WithPublishTimeout sets the timeout of one Enqueue.
func WithPublishTimeout(d time.Duration) NATSReplayerOption {
	return func(c *NATSReplayerConfig) {
		c.PublishTimeout = d
	}
}

// NATSReplayer is a durable replay queue on a NATS JetStream work queue
// stream. Payloads are MessagePack encoded and published with their ID as
// message ID, so a payload enqueued twice within the stream duplicate
// window is stored once.
//
// The NATS connection is owned by the caller.
type NATSReplayer struct {
	js       jetstream.JetStream
	stream   jetstream.Stream
	consumer jetstream.Consumer
	config   NATSReplayerConfig
	closed   atomic.Bool
}

var _ types.Replayer = (*NATSReplayer)(nil)

// NewNATSReplayer creates or updates the replay stream and its consumer.
//
// Parameters:
//   - ctx: Context bounding the stream and consumer setup
//   - js: A JetStream context (created via jetstream.New(conn))
//   - opts: Optional configuration options
//
// Returns:
//   - *NATSReplayer: A replayer ready for use
//   - error: Setup error
//
// Example:
//
//	nc, _ := nats.Connect("nats://localhost:4222")
//	js, _ := jetstream.New(nc)
//	replayer, _ := replay.NewNATSReplayer(ctx, js, replay.WithMaxDeliver(10))
func NewNATSReplayer(ctx context.Context, js jetstream.JetStream, opts ...NATSReplayerOption) (*NATSReplayer, error) {
	if js == nil {
		return nil, errors.New("strand/replay: JetStream context is nil")
	}

	cfg := DefaultNATSReplayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "strand writes waiting for replay",
		Subjects:    []string{cfg.Subject},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      cfg.MaxAge,
		MaxMsgs:     cfg.MaxMsgs,
		Replicas:    cfg.Replicas,
		Storage:     jetstream.FileStorage,
		// a full queue rejects new writes instead of dropping old ones
		Discard: jetstream.DiscardNew,
	})
	if err != nil {
		return nil, fmt.Errorf("strand/replay: create stream %s: %w", cfg.StreamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       cfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    cfg.MaxDeliver,
		AckWait:       cfg.AckWait,
	})
	if err != nil {
		return nil, fmt.Errorf("strand/replay: create consumer %s: %w", cfg.Consumer, err)
	}

	return &NATSReplayer{
		js:       js,
		stream:   stream,
		consumer: consumer,
		config:   cfg,
	}, nil
}

// Enqueue publishes a payload and waits for the stream acknowledgement.
//
// Returns:
//   - error: ErrReplayerClosed after Close, or the encode or publish error
func (n *NATSReplayer) Enqueue(ctx context.Context, payload types.ReplayPayload) error {
	if n.closed.Load() {
		return types.ErrReplayerClosed
	}

	data, err := encodePayload(payload)
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, n.config.PublishTimeout)
	defer cancel()

	if _, err := n.js.Publish(pubCtx, n.config.Subject, data, jetstream.WithMsgID(payload.ID.String())); err != nil {
		return fmt.Errorf("strand/replay: publish %s: %w", payload.ID, err)
	}

	return nil
}

// Message is a payload fetched from the stream. Exactly one of Ack, Nak or
// Term must be called once it is processed.
type Message struct {
	Payload types.ReplayPayload
	// Delivered counts the deliveries of the payload, this one included.
	Delivered uint64

	maxDeliver int
	msg        jetstream.Msg
}

// Ack removes the payload from the stream.
func (m *Message) Ack() error {
	return m.msg.Ack()
}

// Nak asks for a redelivery after delay, or immediately when delay is 0.
func (m *Message) Nak(delay time.Duration) error {
	if delay > 0 {
		return m.msg.NakWithDelay(delay)
	}

	return m.msg.Nak()
}

// Term removes the payload without further delivery.
func (m *Message) Term() error {
	return m.msg.Term()
}

// LastDelivery reports whether the stream will not deliver the payload again.
func (m *Message) LastDelivery() bool {
	return m.maxDeliver > 0 && m.Delivered >= uint64(m.maxDeliver)
}

// Fetch pulls up to batch payloads, waiting at most FetchWait for the first.
//
// Payloads that cannot be decoded are terminated and skipped.
//
// Returns:
//   - []*Message: The fetched payloads, possibly none
//   - error: ErrReplayerClosed after Close, or the fetch error
func (n *NATSReplayer) Fetch(batch int) ([]*Message, error) {
	if n.closed.Load() {
		return nil, types.ErrReplayerClosed
	}

	msgs, err := n.consumer.Fetch(batch, jetstream.FetchMaxWait(n.config.FetchWait))
	if err != nil {
		if errors.Is(err, jetstream.ErrNoMessages) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}

		return nil, fmt.Errorf("strand/replay: fetch: %w", err)
	}

	out := make([]*Message, 0, batch)
	for msg := range msgs.Messages() {
		payload, err := decodePayload(msg.Data())
		if err != nil {
			_ = msg.Term()
			continue
		}
		m := &Message{Payload: payload, maxDeliver: n.config.MaxDeliver, msg: msg}
		if meta, err := msg.Metadata(); err == nil {
			m.Delivered = meta.NumDelivered
		}
		out = append(out, m)
	}
	if err := msgs.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) {
		return out, fmt.Errorf("strand/replay: fetch: %w", err)
	}

	return out, nil
}

// Pending returns the number of payloads in the stream, fetched but not
// yet acknowledged ones included.
func (n *NATSReplayer) Pending(ctx context.Context) (uint64, error) {
	info, err := n.stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("strand/replay: stream info: %w", err)
	}

	return info.State.Msgs, nil
}

// Close rejects further Enqueue and Fetch calls. It does not close the
// NATS connection.
func (n *NATSReplayer) Close() {
	n.closed.Store(true)
}

// StreamName returns the JetStream stream name.
func (n *NATSReplayer) StreamName() string {
	return n.config.StreamName
}
