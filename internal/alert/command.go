package alert

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
)

// CommandSpeaker speaks through an espeak-compatible command line engine.
// Only one utterance runs at a time.
type CommandSpeaker struct {
	command string

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewCommandSpeaker(command string) *CommandSpeaker {
	return &CommandSpeaker{command: command}
}

// Speak starts the engine and returns without waiting for it to finish.
func (s *CommandSpeaker) Speak(_ context.Context, u Utterance) error {
	if s.command == "" {
		return ErrSpeechUnavailable
	}
	path, err := exec.LookPath(s.command)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSpeechUnavailable, err)
	}

	// The utterance outlives the request that started it.
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, path, espeakArgs(u)...)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start speech: %w", err)
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		cancel()
	}()
	return nil
}

// CancelAll stops the utterance in progress, if any.
func (s *CommandSpeaker) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// espeakArgs maps relative voice settings onto espeak flags:
// -s words per minute (175 default), -p pitch 0-99 (50), -a amplitude 0-200 (100).
func espeakArgs(u Utterance) []string {
	rate, pitch, volume := u.Rate, u.Pitch, u.Volume
	if rate <= 0 {
		rate = 1
	}
	if pitch <= 0 {
		pitch = 1
	}
	if volume < 0 {
		volume = 0
	}
	return []string{
		"-s", strconv.Itoa(int(175 * rate)),
		"-p", strconv.Itoa(clamp(int(50*pitch), 0, 99)),
		"-a", strconv.Itoa(clamp(int(100*volume), 0, 200)),
		u.Text,
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// CommandAudio plays a short sound file through an external player.
type CommandAudio struct {
	player string
	file   string
}

func NewCommandAudio(player, file string) *CommandAudio {
	return &CommandAudio{player: player, file: file}
}

// Play is fire-and-forget: it returns once the player has started.
func (a *CommandAudio) Play(_ context.Context) error {
	if a.player == "" || a.file == "" {
		return errors.New("audio cue not configured")
	}
	cmd := exec.Command(a.player, a.file)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start audio player: %w", err)
	}
	go cmd.Wait()
	return nil
}
