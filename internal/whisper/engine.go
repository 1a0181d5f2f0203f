package whisper

import "context"

const (
	StatusInitiate = "initiate"
	StatusDownload = "download"
	StatusProgress = "progress"
	StatusDone     = "done"
	StatusReady    = "ready"
)

// Progress is one tick of a model load. Progress is either a fraction in
// [0,1] or a percentage in [0,100], depending on the engine.
type Progress struct {
	Status   string
	Name     string
	File     string
	Progress float64
	Loaded   int64
	Total    int64
}

type ProgressFunc func(Progress)

type Options map[string]any

type Settings struct {
	AllowLocalModels  bool
	AllowRemoteModels bool
	UseCache          bool
}

func DefaultSettings() Settings {
	return Settings{
		AllowLocalModels:  false,
		AllowRemoteModels: true,
		UseCache:          true,
	}
}

type Engine interface {
	Configure(settings Settings) error
	Load(ctx context.Context, modelName string, onProgress ProgressFunc) (Pipeline, error)
}

type Pipeline interface {
	Transcribe(ctx context.Context, audioURL string, opts Options) (any, error)
}

type Result struct {
	Text   string  `json:"text"`
	Chunks []Chunk `json:"chunks,omitempty"`
}

// Chunk is a timestamped segment; Timestamp holds start and end in seconds.
type Chunk struct {
	Timestamp [2]float64 `json:"timestamp"`
	Text      string     `json:"text"`
}
