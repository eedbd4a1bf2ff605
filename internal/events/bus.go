package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"github.com/Vovarama1992/otk-assistant/internal/inspection"
	"github.com/Vovarama1992/otk-assistant/internal/logger"
)

const (
	module         = "events"
	TopicConfirmed = "inspection.confirmed"
)

// Confirmed — событие о подтверждённой записи ОТК.
type Confirmed struct {
	EventID    string                          `json:"event_id"`
	EventType  string                          `json:"event_type"`
	OccurredAt time.Time                       `json:"occurred_at"`
	Inspection *inspection.ConfirmedInspection `json:"inspection"`
}

type Handler func(ctx context.Context, ev Confirmed) error

// Bus — in-process шина на watermill gochannel.
type Bus struct {
	pubSub *gochannel.GoChannel
	log    logger.Logger
}

func NewBus(log logger.Logger) *Bus {
	return &Bus{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			newWatermillLogger(log),
		),
		log: log,
	}
}

func (b *Bus) PublishConfirmed(ctx context.Context, rec *inspection.ConfirmedInspection) error {
	ev := Confirmed{
		EventID:    uuid.NewString(),
		EventType:  TopicConfirmed,
		OccurredAt: rec.ConfirmedAt,
		Inspection: rec,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(ev.EventID, payload)
	msg.SetContext(ctx)
	if err := b.pubSub.Publish(TopicConfirmed, msg); err != nil {
		return fmt.Errorf("publish %s: %w", TopicConfirmed, err)
	}
	return nil
}

// Subscribe запускает обработчик в отдельной горутине до отмены ctx.
// Каждый подписчик получает свою копию события.
func (b *Bus) Subscribe(ctx context.Context, name string, h Handler) error {
	messages, err := b.pubSub.Subscribe(ctx, TopicConfirmed)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			b.process(ctx, name, msg, h)
		}
	}()
	return nil
}

func (b *Bus) process(ctx context.Context, name string, msg *message.Message, h Handler) {
	var ev Confirmed
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		b.log.Error(module, "bad event payload", map[string]any{"subscriber": name, "message_id": msg.UUID, "error": err})
		msg.Ack()
		return
	}

	// без переотправки: Nack у gochannel крутит сообщение бесконечно
	if err := h(ctx, ev); err != nil {
		b.log.Warn(module, "subscriber failed", map[string]any{
			"subscriber": name,
			"event_id":   ev.EventID,
			"error":      err,
		})
	}
	msg.Ack()
}

func (b *Bus) Close() error {
	return b.pubSub.Close()
}

// Audit пишет каждое подтверждение в лог.
func Audit(log logger.Logger) Handler {
	return func(_ context.Context, ev Confirmed) error {
		rec := ev.Inspection
		if rec == nil {
			return fmt.Errorf("event %s has no inspection", ev.EventID)
		}
		log.Info(module, "inspection confirmed", map[string]any{
			"event_id":      ev.EventID,
			"inspection_id": rec.ID,
			"user_id":       rec.UserID,
			"order_ids":     rec.OrderIDs,
			"status":        string(rec.Status),
			"source":        string(rec.SourceKind),
		})
		return nil
	}
}
