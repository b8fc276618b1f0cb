// Package dispatcher fans an inbound room message out to the subscribers
// whose keywords it matches.
package dispatcher

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"keyword_bot/internal/filter"
	"keyword_bot/internal/model"
)

// DefaultSendRate is the outbound private message rate, per second.
const DefaultSendRate = 20

// Store is the subset of storage the dispatcher reads and writes.
type Store interface {
	StreamSubscribers(ctx context.Context, roomID int64) iter.Seq2[model.Subscription, error]
	TouchLastMatch(ctx context.Context, userID, roomID int64, at time.Time) error
}

// Sender delivers a formatted notification to a user's private chat.
type Sender interface {
	SendPrivate(ctx context.Context, userID int64, text string) error
}

// Result counts what one Dispatch did.
type Result struct {
	Matched int
	Sent    int
	Failed  int
}

// Dispatcher delivers keyword notifications.
type Dispatcher struct {
	store   Store
	sender  Sender
	limiter *rate.Limiter
	log     *slog.Logger
	now     func() time.Time
}

// New creates a Dispatcher sending at DefaultSendRate.
func New(store Store, sender Sender, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(DefaultSendRate), DefaultSendRate),
		log:     log,
		now:     time.Now,
	}
}

// SetSendRate overrides the outbound rate. A non-positive rate disables limiting.
func (d *Dispatcher) SetSendRate(perSecond float64) {
	if perSecond <= 0 {
		d.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	d.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
}

// Dispatch matches msg against every active subscriber of its room and sends
// a notification to each match. A failed send is logged and skipped; only a
// store read failure or cancellation stops the fan-out.
func (d *Dispatcher) Dispatch(ctx context.Context, msg model.MessageEvent) (Result, error) {
	var res Result
	if msg.Text == "" {
		return res, nil
	}

	at := d.now()
	link := ""
	if msg.HasPublicHandle() {
		link = MessageLink(msg.PublicHandle, msg.MessageID)
	}

	for sub, err := range d.store.StreamSubscribers(ctx, msg.RoomID) {
		if err != nil {
			return res, fmt.Errorf("stream subscribers of room %d: %w", msg.RoomID, err)
		}

		matched := filter.Match(msg.Text, sub.Keywords)
		if len(matched) == 0 {
			continue
		}
		res.Matched++

		name := sub.RoomName
		if name == "" {
			name = msg.RoomTitle
		}
		text := FormatNotification(Notification{
			Matched:  matched,
			Sender:   msg.Sender,
			RoomName: name,
			Time:     at,
			Link:     link,
			Text:     msg.Text,
		})

		if err := d.limiter.Wait(ctx); err != nil {
			return res, fmt.Errorf("wait send slot: %w", err)
		}
		if err := d.sender.SendPrivate(ctx, sub.UserID, text); err != nil {
			res.Failed++
			d.log.Warn("send notification", "user_id", sub.UserID, "room_id", msg.RoomID, "error", err)
			continue
		}
		res.Sent++

		if err := d.store.TouchLastMatch(ctx, sub.UserID, msg.RoomID, at); err != nil {
			d.log.Error("record last match", "user_id", sub.UserID, "room_id", msg.RoomID, "error", err)
		}
	}

	if res.Matched > 0 {
		d.log.Debug("message dispatched", "room_id", msg.RoomID, "message_id", msg.MessageID,
			"matched", res.Matched, "sent", res.Sent, "failed", res.Failed)
	}
	return res, nil
}
