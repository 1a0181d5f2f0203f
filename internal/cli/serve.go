package cli

import (
	"strings"

	"github.com/fmueller/voxrelay/internal/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Relay commands from stdin, or serve WebSocket and HTTP clients with --listen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd)
		},
	}

	bindServeFlags(cmd, app)
	return cmd
}

func (a *appState) runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()

	if listen := strings.TrimSpace(a.listen); listen != "" {
		routes := transport.Routes{
			WebSocket:  &transport.WebSocketHandler{NewRelay: a.relayFactory(), Logger: a.log()},
			Transcribe: &transport.TranscribeHandler{NewRelay: a.relayFactory(), Logger: a.log()},
		}
		server := &transport.Server{
			Addr:    listen,
			Handler: transport.NewRouter(routes, a.log()),
			Logger:  a.log(),
		}
		return server.Run(ctx)
	}

	a.log().Debug("serving on stdio", zap.Int("queue_size", a.queueSize))
	return transport.ServeStream(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a.relayFactory(), a.log())
}
