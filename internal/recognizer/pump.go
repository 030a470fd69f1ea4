package recognizer

import (
	"errors"
	"fmt"
	"io"
	"time"

	"mimitomo/internal/ports"
)

const defaultChunkSize = 4096

// pumpAudioChunks copies microphone audio into the stream until either side
// ends. onErr receives at most one failure.
func pumpAudioChunks(
	audio ports.AudioSession,
	stream ports.StreamingSession,
	chunkSize int,
	onErr func(error),
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = defaultChunkSize
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				onErr(fmt.Errorf("failed to stream audio: %w", sendErr))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				onErr(fmt.Errorf("audio capture error: %w", err))
			}
			return
		}
	}
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
