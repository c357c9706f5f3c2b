package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/blockberries/stagefund/app"
	"github.com/blockberries/stagefund/config"
	stagefundgrpc "github.com/blockberries/stagefund/grpc"
	"github.com/blockberries/stagefund/mirror"
	"github.com/blockberries/stagefund/store"
)

func newServeCmd() *cobra.Command {
	var listen, dataDir, mirrorPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the application over gRPC",
		Long:  "Serve the application over gRPC. Configuration is read from STAGEFUND_* environment variables; flags override them.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.ListenAddr = listen
			}
			if flags.Changed("data-dir") {
				cfg.DataDir = dataDir
			}
			if flags.Changed("mirror") {
				cfg.MirrorPath = mirrorPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "gRPC listen address (STAGEFUND_LISTEN_ADDR)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "state directory (STAGEFUND_DATA_DIR)")
	cmd.Flags().StringVar(&mirrorPath, "mirror", "", "SQLite event mirror path (STAGEFUND_MIRROR_PATH)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	log := cfg.Logger(nil)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return errors.Wrap(err, "create data dir")
	}
	st, err := store.Open("state", cfg.StateDir())
	if err != nil {
		return err
	}
	defer st.Close()

	var m *mirror.Mirror
	if cfg.MirrorPath != "" {
		m, err = mirror.Open(ctx, cfg.MirrorPath, log)
		if err != nil {
			return err
		}
		defer m.Close()
	}

	params := cfg.Params()
	appLog := log.With().Str("module", "app").Logger()
	application := app.New(app.Options{
		Store:        st,
		Mirror:       m,
		Logger:       &appLog,
		RetainBlocks: cfg.RetainBlocks,
		EventRetain:  cfg.EventRetain,
		Params:       &params,
	})

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.ListenAddr)
	}
	gs := stagefundgrpc.NewGRPCServer(application, log.With().Str("module", "grpc").Logger()).NewServer()

	errc := make(chan error, 1)
	go func() { errc <- gs.Serve(lis) }()
	log.Info().Str("addr", lis.Addr().String()).Str("version", version).Msg("serving")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		gs.GracefulStop()
		return nil
	case err := <-errc:
		return errors.Wrap(err, "grpc serve")
	}
}
