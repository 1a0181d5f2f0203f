package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fmueller/voxrelay/internal/config"
	"github.com/fmueller/voxrelay/internal/logging"
	"github.com/fmueller/voxrelay/internal/platform"
	"github.com/fmueller/voxrelay/internal/relay"
	"github.com/fmueller/voxrelay/internal/transport"
	"github.com/fmueller/voxrelay/internal/version"
	"github.com/fmueller/voxrelay/internal/whisper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool
	configPath string
	modelDir   string
	listen     string
	queueSize  int

	logger *zap.Logger

	newEngineFn func(ctx context.Context) (whisper.Engine, error)
	isTerminal  func() bool
}

func NewRootCmd() *cobra.Command {
	app := &appState{}
	app.newEngineFn = app.bundledEngine
	app.isTerminal = func() bool { return term.IsTerminal(int(os.Stderr.Fd())) }

	cmd := &cobra.Command{
		Use:           "voxrelay",
		Short:         "Run speech transcription commands in a background worker",
		Long:          "voxrelay reads load, transcribe and stop commands as JSON lines on stdin and writes status, progress, result and error events as JSON lines on stdout.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.prepare(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd)
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindGlobalFlags(cmd, app)
	bindServeFlags(cmd, app)

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newModelsCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindGlobalFlags(cmd *cobra.Command, app *appState) {
	flags := cmd.PersistentFlags()
	flags.BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	flags.BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	flags.BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
	flags.StringVar(&app.configPath, "config", app.configPath, "YAML config file; explicit flags take precedence")
	flags.StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where models are cached")
}

func bindServeFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.listen, "listen", app.listen, "Serve WebSocket sessions on this address instead of stdio, e.g. 127.0.0.1:8790")
	cmd.Flags().IntVar(&app.queueSize, "queue-size", app.queueSize, "Commands buffered per session before intake blocks (0 uses the default)")
}

func (a *appState) prepare(cmd *cobra.Command) error {
	if a.configPath != "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.applyConfig(cfg, cmd.Flags().Changed)
	}

	logger, err := logging.New(logging.Options{Verbose: a.verbose, JSON: a.jsonLogs, Name: cmd.Name()})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	a.logger = logger
	return nil
}

func (a *appState) applyConfig(cfg config.File, changed func(name string) bool) {
	if cfg.ModelDir != "" && !changed("model-dir") {
		a.modelDir = cfg.ModelDir
	}
	if cfg.Listen != "" && !changed("listen") {
		a.listen = cfg.Listen
	}
	if cfg.QueueSize > 0 && !changed("queue-size") {
		a.queueSize = cfg.QueueSize
	}
	if cfg.Log.Verbose && !changed("verbose") {
		a.verbose = true
	}
	if cfg.Log.JSON && !changed("json") {
		a.jsonLogs = true
	}
}

func (a *appState) bundledEngine(_ context.Context) (whisper.Engine, error) {
	modelDir, err := a.modelStorageDir()
	if err != nil {
		return nil, err
	}

	engine, err := whisper.NewBundledEngine(modelDir, a.log())
	if err != nil {
		return nil, err
	}
	// Load progress reaches the host as events, not as a terminal bar.
	engine.NoProgress = true
	return engine, nil
}

func (a *appState) relayFactory() transport.RelayFactory {
	return func(emit relay.EmitFunc, logger *zap.Logger) (*relay.Relay, error) {
		return relay.New(relay.Config{
			NewEngine: a.newEngineFn,
			Emit:      emit,
			Logger:    logger,
			QueueSize: a.queueSize,
		})
	}
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.modelDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress || a.isTerminal == nil {
		return false
	}
	return a.isTerminal()
}
