package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Vovarama1992/otk-assistant/internal/logger"
)

const (
	streamName       = "OTK"
	subjectConfirmed = "otk." + TopicConfirmed
)

// NatsForwarder пересылает события шины в JetStream для внешних систем.
type NatsForwarder struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log logger.Logger
}

func NewNatsForwarder(url string, log logger.Logger) (*NatsForwarder, error) {
	nc, err := nats.Connect(url,
		nats.Name("otk-assistant"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"otk.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
	})
	if err != nil {
		// сервер может ещё подниматься, публикация всё равно попробует
		log.Warn(module, "failed to ensure stream", map[string]any{"stream": streamName, "error": err})
	}

	return &NatsForwarder{nc: nc, js: js, log: log}, nil
}

// Forward — Handler для Bus.Subscribe.
func (f *NatsForwarder) Forward(ctx context.Context, ev Confirmed) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := f.js.Publish(ctx, subjectConfirmed, data, jetstream.WithMsgID(ev.EventID)); err != nil {
		return fmt.Errorf("publish to %s: %w", subjectConfirmed, err)
	}
	f.log.Debug(module, "event forwarded", map[string]any{"event_id": ev.EventID, "subject": subjectConfirmed})
	return nil
}

func (f *NatsForwarder) Close() {
	if f.nc != nil {
		f.nc.Close()
	}
}
