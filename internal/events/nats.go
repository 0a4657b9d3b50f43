package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reverse-auction/utils"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName    = "AUCTION_EVENTS"
	subjectPrefix = "auction.events"
)

// NATSPublisher persists events on a JetStream stream so notification workers
// can consume them at least once
type NATSPublisher struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewNATSPublisher connects to NATS and makes sure the event stream exists
func NewNATSPublisher(ctx context.Context, url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("reverse-auction"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        streamName,
		Description: "Reverse auction lifecycle events",
		Subjects:    []string{subjectPrefix + ".>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Duplicates:  2 * time.Minute,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}
	utils.Info("NATS event stream ready", map[string]any{"stream": streamName})

	return &NATSPublisher{conn: conn, js: js}, nil
}

// Subject is auction.events.<auctionID>.<type>
func Subject(e Event) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, e.AuctionID, e.Type)
}

// Publish waits for the JetStream ack. The event id doubles as the message id so
// the stream drops accidental re-publishes.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ack, err := p.js.Publish(ctx, Subject(e), data, jetstream.WithMsgID(e.EventID))
	if err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}

	utils.Debug("event published to JetStream", map[string]any{
		"subject": Subject(e),
		"seq":     ack.Sequence,
	})
	return nil
}

// Close drains the connection
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
