package transport

import (
	"context"
	"errors"

	"github.com/fmueller/voxrelay/internal/relay"
	"github.com/fmueller/voxrelay/internal/whisper"
	"go.uber.org/zap"
)

type echoPipeline struct{}

func (echoPipeline) Transcribe(_ context.Context, audioURL string, _ whisper.Options) (any, error) {
	return whisper.Result{Text: "heard " + audioURL}, nil
}

type stubEngine struct{}

func (stubEngine) Configure(whisper.Settings) error { return nil }

func (stubEngine) Load(_ context.Context, _ string, onProgress whisper.ProgressFunc) (whisper.Pipeline, error) {
	onProgress(whisper.Progress{Status: whisper.StatusProgress, Progress: 0.5})
	onProgress(whisper.Progress{Status: whisper.StatusProgress, Progress: 1})
	return echoPipeline{}, nil
}

func stubFactory(emit relay.EmitFunc, logger *zap.Logger) (*relay.Relay, error) {
	return relay.New(relay.Config{
		NewEngine: func(context.Context) (whisper.Engine, error) { return stubEngine{}, nil },
		Emit:      emit,
		Logger:    logger,
	})
}

type brokenEngine struct{}

func (brokenEngine) Configure(whisper.Settings) error { return nil }

func (brokenEngine) Load(context.Context, string, whisper.ProgressFunc) (whisper.Pipeline, error) {
	return nil, errors.New("network error")
}

func brokenFactory(emit relay.EmitFunc, logger *zap.Logger) (*relay.Relay, error) {
	return relay.New(relay.Config{
		NewEngine: func(context.Context) (whisper.Engine, error) { return brokenEngine{}, nil },
		Emit:      emit,
		Logger:    logger,
	})
}
