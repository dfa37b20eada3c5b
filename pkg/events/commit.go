package events

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TopicCommitted carries one message per committed registry mutation.
const TopicCommitted = "registry.committed"

// CommitReason names the operation that produced a commit.
type CommitReason string

const (
	ReasonSwitchProvider CommitReason = "switch_provider"
	ReasonSwitchMode     CommitReason = "switch_mode"
	ReasonOverride       CommitReason = "generation_override"
	ReasonParameter      CommitReason = "parameter"
)

type CommitEvent struct {
	Reason    CommitReason `json:"reason"`
	Version   uint64       `json:"version"`
	Provider  string       `json:"provider"`
	Mode      string       `json:"mode"`
	Timestamp time.Time    `json:"timestamp"`
}

// CommitSink announces registry commits.
type CommitSink interface {
	PublishCommit(e CommitEvent) error
}

// WatermillCommitSink publishes commit events as JSON messages on a topic.
type WatermillCommitSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillCommitSink(publisher message.Publisher, topic string) *WatermillCommitSink {
	return &WatermillCommitSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (w *WatermillCommitSink) PublishCommit(e CommitEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "could not marshal commit event")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := w.publisher.Publish(w.topic, msg); err != nil {
		log.Error().Err(err).Str("topic", w.topic).Msg("Failed to publish commit event")
		return err
	}

	log.Trace().Str("topic", w.topic).Uint64("version", e.Version).Str("reason", string(e.Reason)).Msg("Published commit event")
	return nil
}

var _ CommitSink = (*WatermillCommitSink)(nil)

// NopCommitSink drops every event.
type NopCommitSink struct{}

func (NopCommitSink) PublishCommit(CommitEvent) error { return nil }

// NewCommitEventFromJSON decodes a message payload produced by
// WatermillCommitSink.
func NewCommitEventFromJSON(b []byte) (CommitEvent, error) {
	var e CommitEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return CommitEvent{}, errors.Wrap(err, "could not decode commit event")
	}
	return e, nil
}

// CommitHandler adapts f into a router handler. Malformed payloads are logged
// and acknowledged so one bad message cannot wedge the subscription.
func CommitHandler(f func(CommitEvent)) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		e, err := NewCommitEventFromJSON(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping malformed commit event")
			return nil
		}
		f(e)
		return nil
	}
}
