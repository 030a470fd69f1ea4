package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// FFPlayPlayer plays encoded audio through ffplay.
type FFPlayPlayer struct {
	command string
}

func NewFFPlayPlayer(command string) *FFPlayPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlayPlayer{command: command}
}

// Play blocks until playback finishes. Cancelling ctx kills the player.
func (p *FFPlayPlayer) Play(ctx context.Context, audio []byte) error {
	if len(audio) == 0 {
		return nil
	}

	cmd := exec.CommandContext(ctx, p.command,
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
	)
	cmd.Stdin = bytes.NewReader(audio)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("ffplay failed: %w: %s", err, stderr.String())
		}
		return fmt.Errorf("failed to run ffplay: %w", err)
	}
	return nil
}
