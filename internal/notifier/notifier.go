package notifier

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrNotConfigured = errors.New("notifier not configured")

const (
	ColorCritical = 15158332
	ColorWarning  = 16776960
	ColorOK       = 3066993
)

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Message is a channel-neutral notification. Senders decide how much of it
// their channel can show.
type Message struct {
	Title  string
	Text   string
	Color  int
	Fields []Field
	Footer string
}

type Sender interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, msg Message) error
}

// Recorder stores the outcome of each delivery.
type Recorder interface {
	InsertNotificationEvent(ctx context.Context, runID, channel, status string, attempts int, lastErr string, sent *time.Time) error
}

type Dispatcher struct {
	senders  []Sender
	recorder Recorder
	log      *slog.Logger
	attempts int
	now      func() time.Time
	sleep    func(time.Duration)
}

func NewDispatcher(recorder Recorder, logger *slog.Logger, senders ...Sender) *Dispatcher {
	return &Dispatcher{
		senders:  senders,
		recorder: recorder,
		log:      logger,
		attempts: 3,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Enabled reports whether at least one sender is configured.
func (d *Dispatcher) Enabled() bool {
	for _, s := range d.senders {
		if s.Enabled() {
			return true
		}
	}
	return false
}

// Dispatch delivers msg through every enabled sender, retrying each up to three
// times. It returns the joined errors of the senders that never succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, runID string, msg Message) error {
	var errs []error
	for _, s := range d.senders {
		if !s.Enabled() {
			continue
		}
		if err := d.send(ctx, runID, s, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, runID string, s Sender, msg Message) error {
	attempts := 0
	var err error
	for attempts < d.attempts {
		attempts++
		err = s.Send(ctx, msg)
		if err == nil {
			now := d.now().UTC()
			d.record(ctx, runID, s.Name(), "sent", attempts, "", &now)
			d.log.Info("notification sent", "channel", s.Name(), "attempts", attempts)
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		d.sleep(time.Duration(attempts) * 300 * time.Millisecond)
	}
	d.record(ctx, runID, s.Name(), "failed", attempts, err.Error(), nil)
	d.log.Warn("notify failed", "channel", s.Name(), "attempts", attempts, "err", err)
	return err
}

func (d *Dispatcher) record(ctx context.Context, runID, channel, status string, attempts int, lastErr string, sent *time.Time) {
	if d.recorder == nil || runID == "" {
		return
	}
	if err := d.recorder.InsertNotificationEvent(ctx, runID, channel, status, attempts, lastErr, sent); err != nil {
		d.log.Warn("record notification event", "channel", channel, "err", err)
	}
}
