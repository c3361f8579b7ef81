package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/conduit-lang/trident/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveHost string
	servePort int
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session store as a record API",
		Long: `Serve the configured session store over HTTP. The record API at
POST /json is what the http session driver calls, so one trident can
serve fixtures to another.

Routes:
  POST /json               find, where and create calls
  GET  /models             declared model types
  GET  /api/{model}        records matching the query string
  GET  /api/{model}/{id}   one record`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (default: server.host)")
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default: server.port)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	if serveHost != "" {
		env.cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		env.cfg.Server.Port = servePort
	}

	api := server.NewAPI(env.registry, env.store, env.logger)
	srv, err := server.New(server.DefaultConfig(env.cfg.Address()), api.Routes(), env.logger)
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Printf("Serving %s session at http://%s\n", env.cfg.Session.Driver, srv.Addr())
	env.logger.Info("record api ready", zap.String("addr", srv.Addr()), zap.String("driver", env.cfg.Session.Driver))
	return srv.Run(ctx)
}
