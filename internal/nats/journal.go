package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/pkg/metrics"
)

const (
	// StreamName is the name of the room events stream.
	StreamName = "CHAT_EVENTS"

	// SubjectPrefix is the prefix for all room event subjects.
	SubjectPrefix = "chat"
)

// Journal records room events in JetStream.
type Journal struct {
	client *Client
}

// NewJournal creates a journal on client.
func NewJournal(client *Client) *Journal {
	return &Journal{client: client}
}

// EnsureStream ensures the events stream exists with proper configuration.
func (j *Journal) EnsureStream(ctx context.Context) error {
	js := j.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      180 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Chat room synchronizer events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for an event.
func EventSubject(roomID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.event.%s", SubjectPrefix, roomID, eventType)
}

// RoomFilter returns the filter subject for every event of a room.
func RoomFilter(roomID string) string {
	return fmt.Sprintf("%s.%s.event.>", SubjectPrefix, roomID)
}

// Record publishes event and stores the assigned stream sequence on it.
func (j *Journal) Record(ctx context.Context, event *model.RoomEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		metrics.JournalPublishTotal.WithLabelValues(string(event.Type), "error").Inc()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := j.client.JetStream().Publish(ctx, EventSubject(event.RoomID, event.Type), data,
		jetstream.WithMsgID(event.ID))
	if err != nil {
		metrics.JournalPublishTotal.WithLabelValues(string(event.Type), "error").Inc()
		return fmt.Errorf("failed to publish event: %w", err)
	}

	event.Sequence = ack.Sequence
	metrics.JournalPublishTotal.WithLabelValues(string(event.Type), "ok").Inc()
	return nil
}

// Events returns up to limit events of roomID recorded after the given
// stream sequence, the last sequence read and whether more may follow.
func (j *Journal) Events(ctx context.Context, roomID string, afterSequence uint64, limit int) ([]model.RoomEvent, uint64, bool, error) {
	cfg := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{RoomFilter(roomID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = afterSequence + 1
	}

	consumer, err := j.client.JetStream().OrderedConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch events: %w", err)
	}

	events := make([]model.RoomEvent, 0, limit)
	lastSequence := afterSequence
	fetched := 0
	for msg := range batch.Messages() {
		fetched++
		var sequence uint64
		if meta, err := msg.Metadata(); err == nil {
			sequence = meta.Sequence.Stream
			lastSequence = sequence
		}

		event, err := decodeEvent(msg.Data(), sequence)
		if err != nil {
			j.client.logger.Warn("skipping undecodable room event",
				zap.String("subject", msg.Subject()),
				zap.Uint64("sequence", sequence),
				zap.Error(err),
			)
			continue
		}
		events = append(events, event)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, 0, false, fmt.Errorf("batch error: %w", err)
	}

	return events, lastSequence, fetched == limit, nil
}

func decodeEvent(data []byte, sequence uint64) (model.RoomEvent, error) {
	var event model.RoomEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return model.RoomEvent{}, fmt.Errorf("failed to decode room event: %w", err)
	}
	event.Sequence = sequence
	return event, nil
}
