package router

import (
	"github.com/pliu/palaver/internal/models"
	"github.com/pliu/palaver/internal/session"
	"github.com/rs/zerolog"
)

// Router fans a message out to the right set of live sessions.
type Router struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Router {
	return &Router{log: log.With().Str("component", "router").Logger()}
}

// Route delivers msg to its target sessions:
//
//   - broadcast: every live session system-wide, sender's own included
//   - private: every live session of the recipient plus every live session
//     of the sender (so senders see their outgoing messages echoed); when
//     sender == recipient each session still gets the message exactly once
//
// A failing callback never stops delivery to the rest of the fan-out and
// never propagates out of Route.
func (r *Router) Route(msg models.Message, live map[string][]session.Delivery) {
	if msg.Broadcast() {
		for _, deliveries := range live {
			for _, d := range deliveries {
				r.deliver(msg, d)
			}
		}
		return
	}

	for _, d := range live[msg.Recipient] {
		r.deliver(msg, d)
	}
	if msg.Sender != msg.Recipient {
		for _, d := range live[msg.Sender] {
			r.deliver(msg, d)
		}
	}
}

// deliver invokes each registered callback in insertion order, isolating
// failures per callback.
func (r *Router) deliver(msg models.Message, d session.Delivery) {
	for _, fn := range d.Callbacks {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error().
						Interface("panic", rec).
						Str("recipient", d.Username).
						Str("session_id", d.SessionID).
						Str("message_id", msg.ID).
						Msg("delivery callback failed")
				}
			}()
			fn(msg)
		}()
	}
}
