package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmueller/voxrelay/internal/relay"
	"github.com/fmueller/voxrelay/internal/whisper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	outputText = "text"
	outputJSON = "json"
)

type transcribeFlags struct {
	model      string
	language   string
	task       string
	timestamps bool
	output     string
}

func newTranscribeCmd(app *appState) *cobra.Command {
	flags := transcribeFlags{model: whisper.DefaultModel, language: "auto", output: outputText}

	cmd := &cobra.Command{
		Use:   "transcribe <audio>",
		Short: "Transcribe an audio file or URL",
		Long:  "Load a model and transcribe one audio source through the same relay the serve command runs. The source may be a local path, a file:// URL or an http(s) URL.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.output != outputText && flags.output != outputJSON {
				return fmt.Errorf("unsupported output format %q (use %s or %s)", flags.output, outputText, outputJSON)
			}

			audioURL, err := normalizeAudioSource(args[0])
			if err != nil {
				return err
			}

			payload, err := app.transcribeAudio(cmd.Context(), flags, audioURL)
			if err != nil {
				return err
			}

			if text, ok := transcriptText(payload); ok && isBlankTranscript(text) {
				app.log().Warn(noSpeechHint())
			}
			return writeResult(cmd.OutOrStdout(), payload, flags.output)
		},
	}

	cmd.Flags().StringVar(&flags.model, "model", flags.model, "Model name (tiny, base, small, medium, large-v3)")
	cmd.Flags().StringVar(&flags.language, "language", flags.language, "Spoken language code, e.g. en; auto detects it")
	cmd.Flags().StringVar(&flags.task, "task", flags.task, "Set to translate for an English translation")
	cmd.Flags().BoolVar(&flags.timestamps, "timestamps", flags.timestamps, "Include timestamped chunks in the result")
	cmd.Flags().StringVar(&flags.output, "output", flags.output, "Output format: text or json")
	return cmd
}

func (f transcribeFlags) options() whisper.Options {
	opts := whisper.Options{"language": sanitizeLanguage(f.language)}
	if task := strings.TrimSpace(f.task); task != "" {
		opts["task"] = task
	}
	if f.timestamps {
		opts["return_timestamps"] = true
	}
	return opts
}

func (a *appState) transcribeAudio(ctx context.Context, flags transcribeFlags, audioURL string) (any, error) {
	var payload any
	bar := newPercentBar(a.progressEnabled(), "Downloading model")
	r, err := a.localRelay(bar, func(result any) { payload = result })
	if err != nil {
		return nil, err
	}

	if err := r.Handle(ctx, relay.Load(flags.model)); err != nil {
		return nil, err
	}

	a.log().Info("transcribing...", zap.String("audio", audioURL), zap.String("model", flags.model), zap.String("language", flags.language))
	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	started := time.Now()

	err = r.Handle(ctx, relay.Transcribe(audioURL, flags.options()))
	stopSpinner()
	if err != nil {
		return nil, err
	}
	a.log().Info("transcription finished", zap.Duration("elapsed", time.Since(started)))

	return payload, nil
}

// localRelay builds a relay that reports its events to the terminal instead
// of a host. Errors come back from Handle, so error events are dropped.
func (a *appState) localRelay(bar *percentBar, onResult func(any)) (*relay.Relay, error) {
	return relay.New(relay.Config{
		NewEngine: a.newEngineFn,
		Logger:    a.log(),
		Emit: func(ev relay.Event) {
			switch ev.Type {
			case relay.EventStatus:
				a.log().Info(ev.Message)
			case relay.EventLoadProgress:
				bar.Set(ev.Progress)
			case relay.EventModelLoaded:
				bar.Finish()
			case relay.EventResult:
				if onResult != nil {
					onResult(ev.Result)
				}
			}
		},
	})
}

// normalizeAudioSource checks local files up front so a missing file fails
// before any model download starts.
func normalizeAudioSource(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", errors.New("audio source is required")
	}

	if u, err := url.Parse(source); err == nil && u.Scheme != "" && !filepath.IsAbs(source) && len(u.Scheme) > 1 {
		if u.Scheme != "file" {
			return source, nil
		}
		source = u.Path
	}

	path := filepath.Clean(source)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("audio file not found: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve audio path: %w", err)
	}
	return abs, nil
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
