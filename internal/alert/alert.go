// Package alert fans a reminder out to the notification, speech and audio
// channels. A failing channel is logged and counted but never stops the
// others.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"medtrack/internal/apperr"
	"medtrack/internal/metrics"
	"medtrack/internal/reminder"
)

// Permission is the notification permission state, resolved once at startup.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

const (
	ChannelNotification = "notification"
	ChannelSpeech       = "speech"
	ChannelAudio        = "audio"
)

// DefaultRepeatDelay is the gap before a trigger announcement is spoken again.
const DefaultRepeatDelay = 3 * time.Second

// DefaultNotifyTimeout bounds a single visual notification.
const DefaultNotifyTimeout = 10 * time.Second

var ErrSpeechUnavailable = errors.New("speech engine not available")

type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Utterance carries text and voice settings. Rate, Pitch and Volume are
// relative to the engine default of 1.
type Utterance struct {
	Text   string
	Rate   float64
	Pitch  float64
	Volume float64
}

type Speaker interface {
	Speak(ctx context.Context, u Utterance) error
	CancelAll()
}

type AudioCue interface {
	Play(ctx context.Context) error
}

// Voice holds the settings applied to every utterance.
type Voice struct {
	Rate   float64
	Pitch  float64
	Volume float64
}

var DefaultVoice = Voice{Rate: 0.9, Pitch: 1, Volume: 1}

type Dispatcher struct {
	notifier    Notifier
	permission  Permission
	speaker     Speaker
	audio       AudioCue
	voice       Voice
	repeatDelay time.Duration
	notifyWait  time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
	closed  bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithNotifier(n Notifier, p Permission) Option {
	return func(d *Dispatcher) {
		d.notifier = n
		d.permission = p
	}
}

func WithSpeaker(s Speaker, v Voice) Option {
	return func(d *Dispatcher) {
		d.speaker = s
		d.voice = v
	}
}

func WithAudioCue(a AudioCue) Option {
	return func(d *Dispatcher) { d.audio = a }
}

func WithRepeatDelay(delay time.Duration) Option {
	return func(d *Dispatcher) { d.repeatDelay = delay }
}

// WithNotifyTimeout bounds how long Notify waits for the notifier.
func WithNotifyTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.notifyWait = timeout }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		permission:  PermissionDefault,
		voice:       DefaultVoice,
		repeatDelay: DefaultRepeatDelay,
		notifyWait:  DefaultNotifyTimeout,
		logger:      slog.Default(),
		pending:     make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "alert")
	return d
}

// Permission reports the resolved notification permission.
func (d *Dispatcher) Permission() Permission {
	return d.permission
}

// Fire announces a due reminder on every channel and schedules the spoken
// repeat. The notification runs alongside speech and the audio cue, so a
// slow notifier delays neither. The returned error joins the channel
// failures, if any.
func (d *Dispatcher) Fire(ctx context.Context, r *reminder.Reminder) error {
	message := ComposeTrigger(r)

	notified := make(chan error, 1)
	go func() {
		notified <- d.Notify(ctx, "Medicine Reminder", ComposeTriggerNotification(r))
	}()

	var errs []error
	if err := d.Say(ctx, message); err != nil {
		errs = append(errs, err)
	}
	d.scheduleRepeat(message)
	if err := d.playCue(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := <-notified; err != nil {
		errs = append(errs, err)
	}

	metrics.RemindersFired.Inc()
	return errors.Join(errs...)
}

// Notify shows a visual notification when permission was granted and is a
// silent no-op otherwise. It gives up once ctx ends or the notify timeout
// passes, even if the notifier itself ignores ctx.
func (d *Dispatcher) Notify(ctx context.Context, title, body string) error {
	if d.permission != PermissionGranted || d.notifier == nil {
		return nil
	}
	if d.notifyWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.notifyWait)
		defer cancel()
	}

	result := make(chan error, 1)
	go func() { result <- d.notifier.Notify(ctx, title, body) }()

	select {
	case err := <-result:
		if err != nil {
			return d.channelFailed(err, ChannelNotification)
		}
		return nil
	case <-ctx.Done():
		return d.channelFailed(fmt.Errorf("notification not delivered: %w", ctx.Err()), ChannelNotification)
	}
}

// Say cancels any utterance in progress and speaks text once.
func (d *Dispatcher) Say(ctx context.Context, text string) error {
	if d.speaker == nil {
		return d.channelFailed(ErrSpeechUnavailable, ChannelSpeech)
	}
	d.speaker.CancelAll()
	u := Utterance{Text: text, Rate: d.voice.Rate, Pitch: d.voice.Pitch, Volume: d.voice.Volume}
	if err := d.speaker.Speak(ctx, u); err != nil {
		return d.channelFailed(err, ChannelSpeech)
	}
	return nil
}

// Close cancels pending repeats. Later repeats are not scheduled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for t := range d.pending {
		t.Stop()
	}
	clear(d.pending)
}

func (d *Dispatcher) scheduleRepeat(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.repeatDelay <= 0 {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(d.repeatDelay, func() {
		d.mu.Lock()
		_, ok := d.pending[t]
		delete(d.pending, t)
		d.mu.Unlock()
		if !ok {
			return
		}
		_ = d.Say(context.Background(), text)
	})
	d.pending[t] = struct{}{}
}

func (d *Dispatcher) playCue(ctx context.Context) error {
	if d.audio == nil {
		return nil
	}
	if err := d.audio.Play(ctx); err != nil {
		return d.channelFailed(err, ChannelAudio)
	}
	return nil
}

func (d *Dispatcher) channelFailed(err error, channel string) error {
	appErr := apperr.NewAlertChannelError(err, channel)
	metrics.AlertChannelFailures.WithLabelValues(channel).Inc()
	d.logger.Warn("alert channel failed", appErr.LogFields()...)
	return appErr
}
