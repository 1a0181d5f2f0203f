package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fmueller/voxrelay/internal/relay"
	"go.uber.org/zap"
)

const maxLineBytes = 4 << 20

type RelayFactory func(emit relay.EmitFunc, logger *zap.Logger) (*relay.Relay, error)

type Stream struct {
	mu     sync.Mutex
	w      io.Writer
	logger *zap.Logger
}

func NewStream(w io.Writer, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{w: w, logger: logger}
}

func (s *Stream) Emit(event relay.Event) {
	data := marshalEvent(event, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(append(data, '\n')); err != nil {
		s.logger.Warn("failed to write event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

// marshalEvent encodes event, replacing it with an error event when the
// payload cannot be represented as JSON.
func marshalEvent(event relay.Event, logger *zap.Logger) []byte {
	data, err := json.Marshal(event)
	if err == nil {
		return data
	}

	logger.Warn("failed to encode event", zap.String("type", string(event.Type)), zap.Error(err))
	data, _ = json.Marshal(relay.Event{
		Type:  relay.EventError,
		Error: fmt.Sprintf("encode %s event: %v", event.Type, err),
	})
	return data
}

func (s *Stream) Pump(ctx context.Context, r io.Reader, target *relay.Relay) error {
	br := bufio.NewReaderSize(r, 64*1024)

	for {
		raw, tooLong, readErr := readLine(br, maxLineBytes)
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("read commands: %w", readErr)
		}

		if tooLong {
			if err := target.Submit(ctx, relay.Invalid(fmt.Errorf("invalid command: line exceeds %d bytes", maxLineBytes))); err != nil {
				return err
			}
		} else if line := bytes.TrimSpace(raw); len(line) > 0 {
			cmd, err := decodeCommand(line)
			if err != nil {
				s.logger.Debug("dropping malformed command", zap.Error(err))
				cmd = relay.Invalid(err)
			}
			if err := target.Submit(ctx, cmd); err != nil {
				return err
			}
		}

		if readErr != nil {
			return nil
		}
	}
}

// readLine returns the next line without buffering more than limit bytes.
// The rest of a longer line is consumed and discarded.
func readLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, tooLong, err
	}
}

// ServeStream runs one relay over r and w. It returns once r is exhausted
// and every queued command has been handled, or when ctx is cancelled.
func ServeStream(ctx context.Context, r io.Reader, w io.Writer, newRelay RelayFactory, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	stream := NewStream(w, logger)
	target, err := newRelay(stream.Emit, logger)
	if err != nil {
		return err
	}

	runDone := make(chan error, 1)
	go func() { runDone <- target.Run(ctx) }()

	pumpDone := make(chan error, 1)
	go func() { pumpDone <- stream.Pump(ctx, r, target) }()

	var pumpErr error
	select {
	case pumpErr = <-pumpDone:
	case <-ctx.Done():
	}

	target.Close()
	runErr := <-runDone

	if pumpErr != nil && !errors.Is(pumpErr, relay.ErrClosed) && !errors.Is(pumpErr, context.Canceled) {
		return pumpErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func decodeCommand(data []byte) (relay.Command, error) {
	var cmd relay.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return relay.Command{}, fmt.Errorf("invalid command: %w", err)
	}
	return cmd, nil
}
