package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/najoast/nplmini/bootstrap"
	"github.com/najoast/nplmini/config"
	"github.com/najoast/nplmini/core"
	"github.com/najoast/nplmini/logging"
)

// EchoPath is handled by every state of the run command.
const EchoPath = "script/echo.lua"

type runOptions struct {
	configFile string
	envFiles   []string
	watch      bool
	activate   []string
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the NPL runtime until interrupted.",
		Long: "Run loads the configuration, starts the runtime driver and, if " +
			"enabled, the metrics endpoint and configuration hot reload. " +
			"Each --activate ADDRESS[=PAYLOAD] is sent on behalf of the main state once " +
			"started, so a (name) prefix routes it to that state.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRuntime(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "configuration file (searched for when empty)")
	cmd.Flags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, ".env files loaded before environment overrides")
	cmd.Flags().BoolVar(&opts.watch, "watch", true, "reload runtime settings when the configuration file changes")
	cmd.Flags().StringArrayVar(&opts.activate, "activate", nil, "activation sent from main at start, ADDRESS[=PAYLOAD]")
	return cmd
}

func runRuntime(ctx context.Context, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	loader := config.NewLoader().SetDotEnvFiles(opts.envFiles...)
	cfg, err := loader.Load(opts.configFile)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	appOpts := []bootstrap.Option{
		bootstrap.WithLogger(logger),
		bootstrap.WithManagerOptions(core.WithStateFactory(echoStateFactory(logger))),
	}
	if opts.watch && opts.configFile != "" {
		appOpts = append(appOpts, bootstrap.WithConfigFile(opts.configFile, loader))
	}

	app, err := bootstrap.NewApplication(cfg, appOpts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		return err
	}

	for _, arg := range opts.activate {
		address, payload := splitActivation(arg)
		if err := app.Manager().ActivateMain(address, []byte(payload)); err != nil {
			logger.Warn("activation rejected",
				slog.String("address", address),
				slog.Any("error", err))
		}
	}

	<-ctx.Done()
	return app.Shutdown(context.Background())
}

// echoStateFactory builds default states that log every message sent to
// EchoPath.
func echoStateFactory(logger *slog.Logger) core.StateFactory {
	return func(name string, kind core.StateKind, opts ...core.StateOption) core.State {
		s := core.DefaultStateFactory(name, kind, opts...)
		s.RegisterHandler(EchoPath, func(_ core.Signal, st core.State) {
			payload, n := st.CurrentMessage()
			logger.Info("echo",
				slog.String("state", st.Name()),
				slog.Int("length", n),
				slog.String("payload", string(payload)))
		})
		return s
	}
}

func splitActivation(arg string) (address, payload string) {
	address, payload, _ = strings.Cut(arg, "=")
	return address, payload
}
