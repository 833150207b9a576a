package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pliu/palaver/internal/logger"
	"github.com/pliu/palaver/internal/models"
	"github.com/rs/zerolog"
)

const outgoingTopic = "messages.outgoing"

// Pipeline decouples message submission from delivery: Submit enqueues and
// returns, a single worker drains in FIFO order. The subscription is opened
// at construction so nothing submitted before the worker starts is lost.
type Pipeline struct {
	pubsub *gochannel.GoChannel
	msgs   <-chan *message.Message
	log    zerolog.Logger
}

func New(buffer int, log zerolog.Logger) (*Pipeline, error) {
	pl := log.With().Str("component", "pipeline").Logger()
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: int64(buffer)},
		logger.Watermill(pl),
	)

	msgs, err := pubsub.Subscribe(context.Background(), outgoingTopic)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	return &Pipeline{pubsub: pubsub, msgs: msgs, log: pl}, nil
}

// Submit enqueues a message for delivery and returns immediately. It fails
// only when the message cannot be encoded or the pipeline is closed.
func (p *Pipeline) Submit(msg models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.ID, err)
	}

	wm := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.pubsub.Publish(outgoingTopic, wm); err != nil {
		return fmt.Errorf("submit message %s: %w", msg.ID, err)
	}
	return nil
}

// Run drains the queue with exactly one worker, handing each message to
// deliver. One consumer means delivery order matches submission order. Run
// returns when the pipeline is closed or ctx is cancelled; a message that
// fails to decode is logged and dropped, never re-raised.
func (p *Pipeline) Run(ctx context.Context, deliver func(models.Message)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case wm, ok := <-p.msgs:
			if !ok {
				return nil
			}
			var msg models.Message
			if err := json.Unmarshal(wm.Payload, &msg); err != nil {
				p.log.Error().Err(err).Str("uuid", wm.UUID).Msg("decoding queued message")
				wm.Ack()
				continue
			}
			deliver(msg)
			wm.Ack()
		}
	}
}

// Close stops accepting new work and ends the worker loop promptly.
func (p *Pipeline) Close() error {
	return p.pubsub.Close()
}
