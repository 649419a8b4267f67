package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medtrack/internal/apperr"
	"medtrack/internal/logger"
	"medtrack/internal/reminder"
)

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
	bodies []string
	err    error
}

func (f *fakeNotifier) Notify(_ context.Context, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.titles = append(f.titles, title)
	f.bodies = append(f.bodies, body)
	return nil
}

type fakeSpeaker struct {
	mu      sync.Mutex
	spoken  []Utterance
	cancels int
	err     error
}

func (f *fakeSpeaker) Speak(_ context.Context, u Utterance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.spoken = append(f.spoken, u)
	return nil
}

func (f *fakeSpeaker) CancelAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeSpeaker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spoken)
}

type fakeAudio struct {
	plays int
	err   error
}

func (f *fakeAudio) Play(context.Context) error {
	f.plays++
	return f.err
}

func testReminder() *reminder.Reminder {
	return &reminder.Reminder{
		ID:           "r1",
		MedicineName: "Aspirin",
		Time:         "09:00",
		Timings:      []reminder.Timing{reminder.AfterBreakfast},
		Stock:        10,
		PillsPerDose: 2,
	}
}

func TestFireAllChannels(t *testing.T) {
	n, s, a := &fakeNotifier{}, &fakeSpeaker{}, &fakeAudio{}
	d := NewDispatcher(
		WithNotifier(n, PermissionGranted),
		WithSpeaker(s, DefaultVoice),
		WithAudioCue(a),
		WithRepeatDelay(time.Hour),
		WithLogger(logger.Discard()),
	)
	defer d.Close()

	require.NoError(t, d.Fire(context.Background(), testReminder()))

	assert.Equal(t, []string{"Medicine Reminder"}, n.titles)
	require.Len(t, s.spoken, 1)
	assert.Equal(t, "Time to take your Aspirin. 2 pills After Breakfast. You have 10 pills remaining.", s.spoken[0].Text)
	assert.Equal(t, 0.9, s.spoken[0].Rate)
	assert.Equal(t, 1, s.cancels)
	assert.Equal(t, 1, a.plays)
}

// stalledNotifier blocks until released and ignores ctx.
type stalledNotifier struct {
	release chan struct{}
}

func (s *stalledNotifier) Notify(context.Context, string, string) error {
	<-s.release
	return nil
}

func TestStalledNotifierDoesNotBlockOtherChannels(t *testing.T) {
	n := &stalledNotifier{release: make(chan struct{})}
	defer close(n.release)
	s, a := &fakeSpeaker{}, &fakeAudio{}
	d := NewDispatcher(
		WithNotifier(n, PermissionGranted),
		WithSpeaker(s, DefaultVoice),
		WithAudioCue(a),
		WithRepeatDelay(time.Hour),
		WithNotifyTimeout(300*time.Millisecond),
		WithLogger(logger.Discard()),
	)
	defer d.Close()

	done := make(chan error, 1)
	go func() { done <- d.Fire(context.Background(), testReminder()) }()

	assert.Eventually(t, func() bool { return s.count() == 1 }, 150*time.Millisecond, time.Millisecond,
		"speech waited on the notifier")

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrAlertChannel))
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	case <-time.After(time.Second):
		t.Fatal("Fire did not return after the notify timeout")
	}
	assert.Equal(t, 1, a.plays)
}

func TestNotifyHonoursContext(t *testing.T) {
	n := &stalledNotifier{release: make(chan struct{})}
	defer close(n.release)
	d := NewDispatcher(WithNotifier(n, PermissionGranted), WithNotifyTimeout(time.Hour), WithLogger(logger.Discard()))
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := d.Notify(ctx, "t", "b")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}

func TestNotificationRequiresPermission(t *testing.T) {
	for _, p := range []Permission{PermissionDenied, PermissionDefault} {
		n := &fakeNotifier{}
		d := NewDispatcher(WithNotifier(n, p), WithSpeaker(&fakeSpeaker{}, DefaultVoice), WithLogger(logger.Discard()))
		require.NoError(t, d.Notify(context.Background(), "t", "b"))
		assert.Empty(t, n.titles, string(p))
		d.Close()
	}
}

func TestChannelFailuresAreIsolated(t *testing.T) {
	n := &fakeNotifier{err: errors.New("network down")}
	s := &fakeSpeaker{}
	a := &fakeAudio{err: errors.New("no sound device")}
	d := NewDispatcher(
		WithNotifier(n, PermissionGranted),
		WithSpeaker(s, DefaultVoice),
		WithAudioCue(a),
		WithRepeatDelay(time.Hour),
		WithLogger(logger.Discard()),
	)
	defer d.Close()

	err := d.Fire(context.Background(), testReminder())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrAlertChannel))
	assert.Equal(t, 1, s.count(), "speech still runs after notification failure")
	assert.Equal(t, 1, a.plays, "audio still runs")
}

func TestMissingSpeakerIsReported(t *testing.T) {
	a := &fakeAudio{}
	d := NewDispatcher(WithAudioCue(a), WithLogger(logger.Discard()))
	defer d.Close()

	err := d.Fire(context.Background(), testReminder())
	assert.True(t, errors.Is(err, ErrSpeechUnavailable))
	assert.Equal(t, 1, a.plays)
}

func TestSpeechRepeats(t *testing.T) {
	s := &fakeSpeaker{}
	d := NewDispatcher(WithSpeaker(s, DefaultVoice), WithRepeatDelay(20*time.Millisecond), WithLogger(logger.Discard()))
	defer d.Close()

	require.NoError(t, d.Fire(context.Background(), testReminder()))

	assert.Eventually(t, func() bool { return s.count() == 2 }, time.Second, 5*time.Millisecond)
	s.mu.Lock()
	assert.Equal(t, s.spoken[0].Text, s.spoken[1].Text)
	assert.Equal(t, 2, s.cancels)
	s.mu.Unlock()
}

func TestCloseCancelsPendingRepeat(t *testing.T) {
	s := &fakeSpeaker{}
	d := NewDispatcher(WithSpeaker(s, DefaultVoice), WithRepeatDelay(30*time.Millisecond), WithLogger(logger.Discard()))

	require.NoError(t, d.Fire(context.Background(), testReminder()))
	d.Close()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, s.count())
}

func TestSayDoesNotRepeat(t *testing.T) {
	s := &fakeSpeaker{}
	d := NewDispatcher(WithSpeaker(s, DefaultVoice), WithRepeatDelay(10*time.Millisecond), WithLogger(logger.Discard()))
	defer d.Close()

	require.NoError(t, d.Say(context.Background(), "Reminder deleted"))
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, s.count())
}
