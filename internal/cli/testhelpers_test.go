package cli

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/fmueller/voxrelay/internal/whisper"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := NewRootCmd()
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

type fakePipeline struct {
	model string
	text  string
}

func (p fakePipeline) Transcribe(_ context.Context, _ string, opts whisper.Options) (any, error) {
	result := whisper.Result{Text: p.text}
	if ts, _ := opts["return_timestamps"].(bool); ts {
		result.Chunks = []whisper.Chunk{{Timestamp: [2]float64{0, 1.5}, Text: p.text}}
	}
	return result, nil
}

type fakeEngine struct {
	text    string
	loadErr error

	mu    sync.Mutex
	loads []string
}

func (e *fakeEngine) Configure(whisper.Settings) error { return nil }

func (e *fakeEngine) Load(_ context.Context, modelName string, onProgress whisper.ProgressFunc) (whisper.Pipeline, error) {
	e.mu.Lock()
	e.loads = append(e.loads, modelName)
	e.mu.Unlock()

	if e.loadErr != nil {
		return nil, e.loadErr
	}
	onProgress(whisper.Progress{Status: whisper.StatusProgress, Progress: 0.25})
	onProgress(whisper.Progress{Status: whisper.StatusProgress, Progress: 1})
	return fakePipeline{model: modelName, text: e.text}, nil
}

func (e *fakeEngine) loaded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.loads...)
}

func testApp(engine *fakeEngine) *appState {
	return &appState{
		noProgress:  true,
		newEngineFn: func(context.Context) (whisper.Engine, error) { return engine, nil },
	}
}
