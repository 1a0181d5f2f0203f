package whisper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/fmueller/voxrelay/internal/download"
	"github.com/fmueller/voxrelay/internal/platform"
	"go.uber.org/zap"
)

const executableEnv = "VOXRELAY_WHISPER_PATH"

var (
	ErrLocalModelsDisabled  = errors.New("local models are disabled")
	ErrRemoteModelsDisabled = errors.New("remote model downloads are disabled")
)

type BundledEngine struct {
	Executable string
	ModelDir   string
	NoProgress bool
	HTTPClient *http.Client
	Logger     *zap.Logger

	Models map[string]Model

	mu       sync.Mutex
	settings Settings
}

func NewBundledEngine(modelDir string, logger *zap.Logger) (*BundledEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &BundledEngine{ModelDir: modelDir, Logger: logger, settings: DefaultSettings()}

	if override := strings.TrimSpace(os.Getenv(executableEnv)); override != "" {
		if err := ensureExecutable(override); err != nil {
			return nil, fmt.Errorf("%s is not executable: %w", executableEnv, err)
		}
		engine.Executable = override
		return engine, nil
	}

	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve voxrelay executable path: %w", err)
	}

	whisperExe, err := ResolveBundledEnginePath(self)
	if err != nil {
		return nil, err
	}

	engine.Executable = whisperExe
	return engine, nil
}

func ResolveBundledEnginePath(selfExecutable string) (string, error) {
	for _, candidate := range EnginePathCandidates(selfExecutable) {
		if err := ensureExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("bundled whisper engine not found near %s; set %s or install whisper-cli at ../libexec/whisper/%s", selfExecutable, executableEnv, engineBinaryName())
}

func EnginePathCandidates(selfExecutable string) []string {
	binDir := filepath.Dir(selfExecutable)
	engineName := engineBinaryName()
	host := platform.CurrentRuntime()
	hostTarget := fmt.Sprintf("%s_%s", host.OS, host.Arch)

	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", engineName),
		filepath.Join(binDir, "libexec", "whisper", engineName),
		filepath.Join(binDir, "packaging", "whisper", hostTarget, engineName),
		filepath.Join(binDir, engineName),
	}
}

func (b *BundledEngine) Configure(settings Settings) error {
	if settings.UseCache && strings.TrimSpace(b.ModelDir) == "" {
		return errors.New("model directory is required when model caching is enabled")
	}

	b.mu.Lock()
	b.settings = settings
	b.mu.Unlock()

	b.log().Debug("engine configured",
		zap.Bool("allow_local_models", settings.AllowLocalModels),
		zap.Bool("allow_remote_models", settings.AllowRemoteModels),
		zap.Bool("use_cache", settings.UseCache),
	)
	return nil
}

func (b *BundledEngine) Load(ctx context.Context, modelName string, onProgress ProgressFunc) (Pipeline, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	if strings.TrimSpace(modelName) == "" {
		return nil, errors.New("model name is required")
	}

	b.mu.Lock()
	settings := b.settings
	b.mu.Unlock()

	modelDir := b.ModelDir
	scratchDir := ""
	if !settings.UseCache && !looksLikePath(modelName) {
		dir, err := os.MkdirTemp("", "voxrelay-model-*")
		if err != nil {
			return nil, fmt.Errorf("create model scratch directory: %w", err)
		}
		modelDir, scratchDir = dir, dir
	}

	pipeline, err := b.load(ctx, settings, modelName, modelDir, onProgress)
	if err != nil {
		if scratchDir != "" {
			_ = os.RemoveAll(scratchDir)
		}
		return nil, err
	}

	pipeline.scratchDir = scratchDir
	return pipeline, nil
}

func (b *BundledEngine) load(ctx context.Context, settings Settings, modelName, modelDir string, onProgress ProgressFunc) (*bundledPipeline, error) {
	models := b.Models
	if models == nil {
		models = registry
	}

	resolved, err := resolveModelIn(models, modelName, modelDir)
	if err != nil {
		return nil, err
	}
	if resolved.IsLocalPath && !settings.AllowLocalModels {
		return nil, fmt.Errorf("%w: %s", ErrLocalModelsDisabled, resolved.Path)
	}

	file := filepath.Base(resolved.Path)
	onProgress(Progress{Status: StatusInitiate, Name: resolved.Name, File: file})

	if resolved.NeedsDownload {
		if !settings.AllowRemoteModels {
			return nil, fmt.Errorf("%w: model %q is not cached at %s", ErrRemoteModelsDisabled, resolved.Name, resolved.Path)
		}

		onProgress(Progress{Status: StatusDownload, Name: resolved.Name, File: file})
		b.log().Info("downloading model", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))

		lastPercent := int64(-1)
		err := download.DownloadFile(ctx, download.Options{
			URL:            resolved.URL,
			Destination:    resolved.Path,
			ExpectedSHA256: resolved.SHA256,
			ChecksumURL:    resolved.SHA256URL,
			NoProgress:     b.NoProgress,
			HTTPClient:     b.HTTPClient,
			Logger:         b.log(),
			OnProgress: func(written, total int64) {
				if total <= 0 {
					return
				}
				percent := written * 100 / total
				if percent == lastPercent {
					return
				}
				lastPercent = percent
				onProgress(Progress{
					Status:   StatusProgress,
					Name:     resolved.Name,
					File:     file,
					Progress: float64(written) / float64(total),
					Loaded:   written,
					Total:    total,
				})
			},
		})
		if err != nil {
			return nil, fmt.Errorf("download model %q: %w", resolved.Name, err)
		}
		resolved.NeedsDownload = false
	}

	onProgress(Progress{Status: StatusDone, Name: resolved.Name, File: file})
	onProgress(Progress{Status: StatusReady, Name: resolved.Name})
	b.log().Debug("model ready", zap.String("model", resolved.Name), zap.String("path", resolved.Path))

	return &bundledPipeline{engine: b, model: resolved}, nil
}

func (b *BundledEngine) log() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}
