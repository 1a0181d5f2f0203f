package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmueller/voxrelay/internal/download"
	"go.uber.org/zap"
)

type TranscriptionRequest struct {
	AudioPath  string
	ModelPath  string
	Language   string
	Translate  bool
	Timestamps bool
}

type bundledPipeline struct {
	engine     *BundledEngine
	model      ResolvedModel
	scratchDir string
}

func (p *bundledPipeline) Transcribe(ctx context.Context, audioURL string, opts Options) (any, error) {
	audioPath, cleanup, err := p.engine.fetchAudio(ctx, audioURL)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	req := requestFromOptions(opts)
	req.AudioPath = audioPath
	req.ModelPath = p.model.Path

	return p.engine.Transcribe(ctx, req)
}

func (p *bundledPipeline) Close() error {
	if p.scratchDir == "" {
		return nil
	}
	return os.RemoveAll(p.scratchDir)
}

func (b *BundledEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (Result, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Result{}, errors.New("audio path is required")
	}
	if strings.TrimSpace(req.ModelPath) == "" {
		return Result{}, errors.New("model path is required")
	}

	if err := ensureExecutable(b.Executable); err != nil {
		return Result{}, fmt.Errorf("bundled whisper engine missing or not executable: %w", err)
	}

	outBase := filepath.Join(os.TempDir(), fmt.Sprintf("voxrelay-%d", time.Now().UnixNano()))
	jsonOut := outBase + ".json"

	args := []string{"-m", req.ModelPath, "-f", req.AudioPath, "-oj", "-of", outBase}
	// whisper-cli assumes English unless told otherwise.
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = "auto"
	}
	args = append(args, "-l", lang)
	if req.Translate {
		args = append(args, "-tr")
	}

	cmd := exec.CommandContext(ctx, b.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	b.log().Debug("running whisper engine", zap.String("engine", b.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		errText := strings.TrimSpace(stderr.String())
		if isMissingSharedLibraryError(errText) {
			return Result{}, fmt.Errorf("bundled whisper engine at %s is missing required shared libraries (%s); rebuild whisper-cli with BUILD_SHARED_LIBS=OFF", b.Executable, errText)
		}
		if isIllegalInstructionError(errText) || isIllegalInstructionError(err.Error()) {
			return Result{}, fmt.Errorf("bundled whisper engine crashed with an illegal CPU instruction; "+
				"set %s to a whisper-cli binary built for your CPU", executableEnv)
		}
		return Result{}, fmt.Errorf("whisper transcribe failed: %w (%s)", err, errText)
	}

	defer os.Remove(jsonOut)
	content, err := os.ReadFile(jsonOut)
	if err != nil {
		return Result{}, fmt.Errorf("read whisper output: %w", err)
	}

	return parseOutput(content, req.Timestamps)
}

type cliOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseOutput(content []byte, withChunks bool) (Result, error) {
	var out cliOutput
	if err := json.Unmarshal(content, &out); err != nil {
		return Result{}, fmt.Errorf("decode whisper output: %w", err)
	}

	var text strings.Builder
	result := Result{}
	for _, segment := range out.Transcription {
		text.WriteString(segment.Text)
		if withChunks {
			result.Chunks = append(result.Chunks, Chunk{
				Timestamp: [2]float64{float64(segment.Offsets.From) / 1000, float64(segment.Offsets.To) / 1000},
				Text:      strings.TrimSpace(segment.Text),
			})
		}
	}
	result.Text = strings.TrimSpace(text.String())
	return result, nil
}

func requestFromOptions(opts Options) TranscriptionRequest {
	req := TranscriptionRequest{}
	if lang, ok := opts["language"].(string); ok {
		req.Language = strings.ToLower(strings.TrimSpace(lang))
	}
	if task, ok := opts["task"].(string); ok {
		req.Translate = strings.EqualFold(strings.TrimSpace(task), "translate")
	}
	switch v := opts["return_timestamps"].(type) {
	case bool:
		req.Timestamps = v
	case string:
		req.Timestamps = v != "" && v != "false"
	}
	return req
}

func (b *BundledEngine) fetchAudio(ctx context.Context, audioURL string) (string, func(), error) {
	noop := func() {}
	ref := strings.TrimSpace(audioURL)
	if ref == "" {
		return "", noop, errors.New("audio URL is required")
	}

	localPath := ref
	if !filepath.IsAbs(ref) {
		u, err := url.Parse(ref)
		if err != nil {
			return "", noop, fmt.Errorf("parse audio URL: %w", err)
		}

		switch u.Scheme {
		case "":
		case "file":
			localPath = u.Path
		case "http", "https":
			dir, err := os.MkdirTemp("", "voxrelay-audio-*")
			if err != nil {
				return "", noop, fmt.Errorf("create audio scratch directory: %w", err)
			}
			cleanup := func() { _ = os.RemoveAll(dir) }

			dest := filepath.Join(dir, "audio"+path.Ext(u.Path))
			if err := download.DownloadFile(ctx, download.Options{
				URL:         ref,
				Destination: dest,
				Retries:     1,
				NoProgress:  true,
				HTTPClient:  b.HTTPClient,
				Logger:      b.log(),
			}); err != nil {
				cleanup()
				return "", noop, fmt.Errorf("fetch audio: %w", err)
			}
			return dest, cleanup, nil
		default:
			return "", noop, fmt.Errorf("unsupported audio source scheme %q", u.Scheme)
		}
	}

	localPath = filepath.Clean(localPath)
	if _, err := os.Stat(localPath); err != nil {
		return "", noop, fmt.Errorf("audio file not found: %w", err)
	}
	return localPath, noop, nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	patterns := []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	}

	for _, pattern := range patterns {
		if strings.Contains(value, pattern) {
			return true
		}
	}

	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}
