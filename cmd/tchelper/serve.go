package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tcbot-dev/tchelper/pkg/db"
	"github.com/tcbot-dev/tchelper/pkg/flags"
	"github.com/tcbot-dev/tchelper/pkg/tcserver"
)

type ServerFlags struct {
	BuildServerFlags *BuildServerFlags
	DBFlags          *flags.PostgresFlags
	APIFlags         *flags.APIFlags
}

func NewServerFlags() *ServerFlags {
	return &ServerFlags{
		BuildServerFlags: NewBuildServerFlags(),
		DBFlags:          flags.NewPostgresDatabaseFlags(),
		APIFlags:         flags.NewAPIFlags(),
	}
}

func (f *ServerFlags) BindFlags(flagSet *pflag.FlagSet) {
	f.BuildServerFlags.BindFlags(flagSet)
	f.DBFlags.BindFlags(flagSet)
	f.APIFlags.BindFlags(flagSet)
}

func NewServeCommand() *cobra.Command {
	f := NewServerFlags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve chain and history reports over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			servers, err := f.BuildServerFlags.GetBuildServers()
			if err != nil {
				return errors.WithMessage(err, "couldn't configure build servers")
			}
			defer servers.Close()

			var dbc *db.DB
			if f.DBFlags.Enabled() {
				dbc, err = f.DBFlags.GetDBClient()
				if err != nil {
					return errors.WithMessage(err, "couldn't get DB client")
				}
			}

			server := tcserver.NewServer(
				f.APIFlags.ListenAddr,
				f.BuildServerFlags.TeamCityFlags.ServerID,
				servers.Resolvers,
				servers.Config,
				dbc,
			)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.WithError(err).Warning("error shutting down server")
				}
			}()

			// Serve our metrics endpoint for prometheus to scrape
			if f.APIFlags.MetricsAddr != "" {
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.Handler())
					err := http.ListenAndServe(f.APIFlags.MetricsAddr, mux) //nolint
					if err != nil {
						log.WithError(err).Error("metrics listener stopped")
					}
				}()
			}

			return server.Serve()
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
