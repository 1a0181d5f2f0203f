package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fmueller/voxrelay/internal/whisper"
	"go.uber.org/zap"
)

const defaultQueueSize = 64

type Config struct {
	NewEngine func(ctx context.Context) (whisper.Engine, error)
	Emit      EmitFunc
	Logger    *zap.Logger
	QueueSize int
}

type Session struct {
	ModelName string
	Pipeline  whisper.Pipeline
}

// Relay turns commands into engine calls and engine outcomes into events.
// Commands submitted through Submit are handled one at a time by Run.
type Relay struct {
	newEngine func(ctx context.Context) (whisper.Engine, error)
	emit      EmitFunc
	logger    *zap.Logger

	initMu sync.Mutex
	engine whisper.Engine

	mu      sync.Mutex
	session Session

	queue    chan Command
	closeMu  sync.RWMutex
	closed   bool
	done     chan struct{}
	doneOnce sync.Once
}

func New(cfg Config) (*Relay, error) {
	if cfg.NewEngine == nil {
		return nil, errors.New("engine constructor is required")
	}
	if cfg.Emit == nil {
		return nil, errors.New("emit function is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	return &Relay{
		newEngine: cfg.NewEngine,
		emit:      cfg.Emit,
		logger:    cfg.Logger,
		queue:     make(chan Command, cfg.QueueSize),
		done:      make(chan struct{}),
	}, nil
}

// Initialize constructs and configures the engine once. A failed attempt is
// retried on the next call.
func (r *Relay) Initialize(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()

	if r.engine != nil {
		return nil
	}

	engine, err := r.newEngine(ctx)
	if err != nil {
		return newError(KindEngineInit, err)
	}
	if err := engine.Configure(whisper.DefaultSettings()); err != nil {
		return newError(KindEngineInit, err)
	}

	r.engine = engine
	r.logger.Debug("engine initialized")
	return nil
}

// Submit queues a command for Run. It blocks while the queue is full.
func (r *Relay) Submit(ctx context.Context, cmd Command) error {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()

	if r.closed {
		return ErrClosed
	}
	select {
	case <-r.done:
		return ErrClosed
	default:
	}

	select {
	case r.queue <- cmd:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) Close() {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()

	if !r.closed {
		r.closed = true
		close(r.queue)
	}
}

// Run handles queued commands in arrival order until Close drains the queue
// or ctx is cancelled. It must be called at most once.
func (r *Relay) Run(ctx context.Context) error {
	defer r.doneOnce.Do(func() { close(r.done) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-r.queue:
			if !ok {
				return nil
			}
			_ = r.Handle(ctx, cmd)
		}
	}
}

func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Handle processes one command and emits its events. The returned error is
// the one reported through the error event, if any.
func (r *Relay) Handle(ctx context.Context, cmd Command) error {
	log := r.logger.With(zap.String("command", string(cmd.Type)))
	log.Debug("handling command")

	err := r.safeDispatch(ctx, cmd)
	if err != nil {
		kind := ErrorKind("")
		var relayErr *Error
		if errors.As(err, &relayErr) {
			kind = relayErr.Kind
		}
		log.Warn("command failed", zap.String("kind", string(kind)), zap.Error(err))
		r.emit(errorEvent(err))
	}
	return err
}

// safeDispatch turns a panicking engine into a failed command so the worker
// survives it.
func (r *Relay) safeDispatch(ctx context.Context, cmd Command) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = newError(panicKind(cmd.Type), fmt.Errorf("engine panic: %v", v))
		}
	}()
	return r.dispatch(ctx, cmd)
}

func panicKind(t CommandType) ErrorKind {
	switch t {
	case CommandLoad:
		return KindLoad
	case CommandTranscribe:
		return KindTranscribe
	default:
		return KindInvalidCommand
	}
}

func (r *Relay) dispatch(ctx context.Context, cmd Command) error {
	if cmd.invalid != nil {
		return newError(KindInvalidCommand, cmd.invalid)
	}

	switch cmd.Type {
	case CommandStop:
		r.emit(Event{Type: EventStopped})
		return nil
	case CommandLoad:
		if err := r.Initialize(ctx); err != nil {
			return err
		}
		return r.load(ctx, cmd.Data.ModelName)
	case CommandTranscribe:
		// A held pipeline implies the engine is initialized.
		return r.transcribe(ctx, cmd.Data.AudioURL, cmd.Data.Options)
	default:
		return invalidCommand("unknown command type %q", cmd.Type)
	}
}

func (r *Relay) load(ctx context.Context, modelName string) error {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return newError(KindLoad, errors.New("model name is required"))
	}

	if current := r.Session(); current.Pipeline != nil && current.ModelName == modelName {
		r.logger.Debug("model already loaded", zap.String("model", modelName))
		r.emit(Event{Type: EventModelLoaded})
		return nil
	}

	r.emit(statusEvent(fmt.Sprintf("Loading model %s...", modelName)))

	last := -1
	pipeline, err := r.engine.Load(ctx, modelName, func(p whisper.Progress) {
		if p.Status != whisper.StatusProgress {
			return
		}
		percent := NormalizeProgress(p.Progress)
		if percent < last {
			return
		}
		last = percent
		r.emit(progressEvent(percent))
	})
	if err != nil {
		return newError(KindLoad, err)
	}

	r.mu.Lock()
	previous := r.session.Pipeline
	r.session = Session{ModelName: modelName, Pipeline: pipeline}
	r.mu.Unlock()

	if closer, ok := previous.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			r.logger.Warn("failed to release previous model", zap.Error(err))
		}
	}

	r.logger.Info("model loaded", zap.String("model", modelName))
	r.emit(Event{Type: EventModelLoaded})
	return nil
}

func (r *Relay) transcribe(ctx context.Context, audioURL string, opts whisper.Options) error {
	current := r.Session()
	if current.Pipeline == nil {
		return newError(KindNotReady, ErrNotReady)
	}

	r.emit(statusEvent("Transcribing..."))

	payload, err := current.Pipeline.Transcribe(ctx, audioURL, opts)
	if err != nil {
		return newError(KindTranscribe, err)
	}

	r.logger.Info("transcription finished", zap.String("model", current.ModelName), zap.String("audio", audioURL))
	r.emit(resultEvent(payload))
	return nil
}

func (r *Relay) Session() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}
