package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/grpc"

	"github.com/becomeliminal/nim-memory/bridge"
	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/healthcheck"
	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/server"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	var (
		opts       options
		addr       string
		healthAddr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP listen address",
			Sources:     cli.EnvVars("NIM_MEMORY_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "health-addr",
			Usage:       "gRPC health listen address (empty disables it)",
			Sources:     cli.EnvVars("NIM_MEMORY_HEALTH_ADDR"),
			Destination: &healthAddr,
		},
	}
	flags = append(flags, memoryFlags(&opts)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the memory HTTP and websocket API",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			set(&cfg.Server.Addr, addr)
			set(&cfg.Server.HealthAddr, healthAddr)

			rt, err := setup(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			if cfg.Server.HealthAddr != "" {
				stop, err := serveHealth(ctx, cfg, rt)
				if err != nil {
					return err
				}
				defer stop()
			}

			api := server.New(rt.orchestrator,
				server.WithHistory(rt.history),
				server.WithDefaults(server.Defaults{
					Persona:    cfg.Defaults.Persona,
					DeviceType: cfg.Defaults.DeviceType,
				}),
				server.WithLogger(rt.logger),
			)
			return listenAndServe(ctx, cfg.Server.Addr, api.Handler())
		},
	}
}

func bridgeCommand() *cli.Command {
	var (
		opts options
		addr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Bridge listen address",
			Sources:     cli.EnvVars("NIM_MEMORY_BRIDGE_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&opts)...)
	flags = append(flags, storeFlags(&opts)...)

	return &cli.Command{
		Name:  "bridge",
		Usage: "Serve a vector store over the bridge protocol",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			set(&cfg.Server.BridgeAddr, addr)
			if cfg.Store.Backend == config.BackendBridge {
				return goerr.New("bridge cannot serve a bridge backend; choose chromem or firestore")
			}

			rt := &runtime{cfg: cfg, logger: logging.Default()}
			defer rt.Close()
			store, err := rt.newStore(ctx)
			if err != nil {
				return err
			}

			return listenAndServe(ctx, cfg.Server.BridgeAddr, bridge.NewServer(store, rt.logger).Handler())
		},
	}
}

// listenAndServe serves h on addr until ctx ends, then shuts down gracefully.
func listenAndServe(ctx context.Context, addr string, h http.Handler) error {
	logger := logging.Default()
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- goerr.Wrap(err, "server failed", goerr.V("addr", addr))
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "addr", addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "shutdown failed")
	}
	return nil
}

// serveHealth publishes store availability on the gRPC health protocol.
func serveHealth(ctx context.Context, cfg *config.Config, rt *runtime) (func(), error) {
	lis, err := net.Listen("tcp", cfg.Server.HealthAddr)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to listen for grpc health", goerr.V("addr", cfg.Server.HealthAddr))
	}

	gs := grpc.NewServer()
	pub := healthcheck.NewPublisher(config.HealthService, rt.orchestrator, cfg.Memory.SweepInterval)
	pub.Register(gs)

	go pub.Run(ctx)
	go func() {
		if err := gs.Serve(lis); err != nil {
			rt.logger.Warn("grpc health server stopped", "error", err)
		}
	}()
	rt.logger.Info("grpc health listening", "addr", cfg.Server.HealthAddr)

	return gs.GracefulStop, nil
}
