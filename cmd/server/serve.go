package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"hostpanel/internal/auth"
	"hostpanel/internal/config"
	"hostpanel/internal/daemon"
	"hostpanel/internal/hub"
	"hostpanel/internal/lifecycle"
	"hostpanel/internal/notifier"
	"hostpanel/internal/permission"
	"hostpanel/internal/relay"
	"hostpanel/internal/server"
	"hostpanel/internal/service"
	"hostpanel/internal/socketio"
	"hostpanel/internal/store"
)

func newServeCmd(flags *pflag.FlagSet) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and realtime API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	unsugared, err := createLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = unsugared.Sync() }()
	logger := unsugared.Sugar()

	gin.SetMode(cfg.GinMode)

	st, err := store.NewWithOptions(store.Options{Path: cfg.DatabasePath})
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	tokens := auth.TokenConfig{Secret: cfg.JWTSecret, Expiry: cfg.TokenExpiry, Issuer: "hostpanel"}
	resolver := auth.NewResolver(tokens, st, logger)
	evaluator := permission.NewEvaluator(st)
	gateway := daemon.NewGateway(daemon.Config{Secret: cfg.DaemonSecret, Timeout: cfg.DaemonTimeout}, logger)

	rl := relay.New(resolver, evaluator, st, gateway, logger)
	sio := socketio.NewServer(rl, hub.New(), logger)
	rl.Attach(sio)

	wg := &sync.WaitGroup{}
	lifecycleStream := notifier.NewNoop()
	if cfg.Kafka.Enabled() {
		lifecycleStream = notifier.NewKafkaNotifier(ctx, wg, logger, notifier.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
	}

	svc := service.New(service.Deps{
		Store:     st,
		Daemon:    gateway,
		Evaluator: evaluator,
		Machine:   lifecycle.NewMachine(st, rl, lifecycleStream, logger),
		Publisher: rl,
		Tokens:    tokens,
		Logger:    logger,
	})
	rl.SetCommander(svc)

	limiter := server.NewLoginLimiter(cfg.LoginRateLimit)
	defer limiter.Stop()

	router := server.NewRouter(server.Deps{
		Service:        svc,
		Resolver:       resolver,
		Socket:         sio,
		DB:             st,
		DaemonSecret:   cfg.DaemonSecret,
		LoginLimiter:   limiter,
		TrustedProxies: cfg.TrustedProxies,
		Logger:         logger,
		Version:        version,
	})

	logger.Infow("starting hostpanel", "port", cfg.Port, "version", version, "kafka", cfg.Kafka.Enabled())
	err = server.Run(ctx, cfg, router, logger)
	wg.Wait()
	return err
}
