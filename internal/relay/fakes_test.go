package relay

import (
	"context"
	"sync"

	"github.com/fmueller/voxrelay/internal/whisper"
)

type fakePipeline struct {
	model   string
	payload any
	err     error

	mu     sync.Mutex
	calls  []string
	opts   []whisper.Options
	closed bool
}

func (p *fakePipeline) Transcribe(_ context.Context, audioURL string, opts whisper.Options) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, audioURL)
	p.opts = append(p.opts, opts)
	if p.err != nil {
		return nil, p.err
	}
	return p.payload, nil
}

func (p *fakePipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeEngine struct {
	mu           sync.Mutex
	settings     []whisper.Settings
	loads        []string
	ticks        []whisper.Progress
	loadErr      map[string]error
	configureErr error
	payload      any
	pipelines    map[string]*fakePipeline
	release      chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		loadErr:   map[string]error{},
		pipelines: map[string]*fakePipeline{},
	}
}

func (e *fakeEngine) Configure(settings whisper.Settings) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = append(e.settings, settings)
	return e.configureErr
}

func (e *fakeEngine) Load(ctx context.Context, modelName string, onProgress whisper.ProgressFunc) (whisper.Pipeline, error) {
	e.mu.Lock()
	e.loads = append(e.loads, modelName)
	ticks := append([]whisper.Progress(nil), e.ticks...)
	err := e.loadErr[modelName]
	release := e.release
	e.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for _, tick := range ticks {
		onProgress(tick)
	}
	if err != nil {
		return nil, err
	}

	pipeline := &fakePipeline{model: modelName, payload: e.payload}
	e.mu.Lock()
	e.pipelines[modelName] = pipeline
	e.mu.Unlock()
	return pipeline, nil
}

func (e *fakeEngine) loadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.loads)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) types() []EventType {
	events := r.all()
	out := make([]EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func progressTicks(values ...float64) []whisper.Progress {
	ticks := make([]whisper.Progress, 0, len(values))
	for _, v := range values {
		ticks = append(ticks, whisper.Progress{Status: whisper.StatusProgress, Progress: v})
	}
	return ticks
}

// panickyEngine fails the way a buggy engine binding would.
type panickyEngine struct {
	panicOnLoad bool
}

func (panickyEngine) Configure(whisper.Settings) error { return nil }

func (e panickyEngine) Load(context.Context, string, whisper.ProgressFunc) (whisper.Pipeline, error) {
	if e.panicOnLoad {
		var counts map[string]int
		counts["tiny"]++
	}
	return panickyPipeline{}, nil
}

type panickyPipeline struct{}

func (panickyPipeline) Transcribe(context.Context, string, whisper.Options) (any, error) {
	panic("decoder state corrupted")
}
