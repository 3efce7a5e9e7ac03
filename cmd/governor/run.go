package main

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nanogov/governor/internal/buildinfo"
	"nanogov/governor/pkg/cli"
	"nanogov/governor/pkg/config"
	"nanogov/governor/pkg/decisionlog"
	"nanogov/governor/pkg/enforce"
	"nanogov/governor/pkg/evidence"
	"nanogov/governor/pkg/evidence/recorder"
	"nanogov/governor/pkg/evidence/retention"
	"nanogov/governor/pkg/evidence/sink"
	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/git"
	"nanogov/governor/pkg/policy/inbox"
	"nanogov/governor/pkg/policy/signature"
	"nanogov/governor/pkg/policy/store"
	"nanogov/governor/pkg/security/auth"
	govtls "nanogov/governor/pkg/security/tls"
	"nanogov/governor/pkg/server"
	"nanogov/governor/pkg/statebus"
	"nanogov/governor/pkg/stream"
	"nanogov/governor/pkg/telemetry/health"
	"nanogov/governor/pkg/telemetry/logging"
	"nanogov/governor/pkg/telemetry/metrics"
	"nanogov/governor/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the governor API server",
	Long: `Start the governor with the specified configuration.

The server enforces state snapshots over HTTP, accepts signed policy updates,
streams decisions over a websocket and, when configured, watches the policy
inbox and Git repository, consumes state snapshots from Kafka and archives
every decision as evidence.

Send SIGHUP to reload the configuration file; the log level and the enabled
checkpoints follow the new file.

Examples:
  # Start with defaults and GOVERNOR_* environment overrides
  governor run

  # Start with custom config
  governor run --config /etc/governor/governor.yaml

  # Override listen address
  governor run --listen 0.0.0.0:8480

  # Validate config and start-up policies without serving
  governor run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and start-up policies without starting the server")
}

// governor holds the wired components of a running instance.
type governor struct {
	cfg      *config.Config
	logger   *logging.Logger
	tracer   *tracing.Tracer
	metrics  *metrics.Collector
	health   *health.Checker
	hub      *stream.Hub
	registry *signature.Registry
	store    *store.Store
	journal  *decisionlog.Log
	engine   *enforce.Engine
	evidence evidence.Storage
	recorder *recorder.Recorder
	sink     *sink.RedisSink
	keys     *auth.KeySet
	tls      *cryptotls.Config
	server   *server.Server

	closers []func() error
}

// onClose registers fn to run on close, in reverse order of registration.
func (g *governor) onClose(fn func() error) {
	g.closers = append(g.closers, fn)
}

// close releases every component. The recorder drains before the storage
// it writes to is closed.
func (g *governor) close() error {
	var errs []error
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	g.closers = nil
	return errors.Join(errs...)
}

// buildGovernor wires the store, engine, evidence pipeline, telemetry and
// HTTP server. Background sources are started separately by startSources.
func buildGovernor(ctx context.Context, cfg *config.Config, logger *logging.Logger) (g *governor, err error) {
	g = &governor{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = g.close()
		}
	}()
	log := logger.Logger

	if g.tracer, err = tracing.Install(&cfg.Telemetry.Tracing, tracing.WithNodeID(cfg.Engine.NodeID)); err != nil {
		return nil, cli.NewConfigError("telemetry.tracing", err.Error())
	}
	g.onClose(func() error { return g.tracer.Shutdown(context.Background()) })

	g.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	g.hub = stream.NewHub()
	g.hub.OnSubscriberChange(g.metrics.SetStreamSubscribers)
	g.health = health.New(cfg.Telemetry.Health.CheckTimeout)

	if g.registry, err = newRegistry(&cfg.Signature); err != nil {
		return nil, err
	}
	if len(cfg.Signature.TrustedKeys) == 0 {
		log.Warn("no trusted policy keys configured; only the default policy set is enforced and every signed update is rejected")
	}
	g.store, err = newStore(cfg, log,
		store.WithListener(g.hub.ObserveStoreEvent),
		store.WithListener(g.metrics.ObserveStoreEvent))
	if err != nil {
		return nil, err
	}
	g.health.RegisterCheck(health.CheckDefaultPolicy, health.DefaultPolicyCheck(g.store))

	results, err := applyFiles(g.store, g.registry, cfg.Policies.Files)
	if err != nil {
		return nil, cli.NewCommandError("run", err)
	}
	for _, res := range results {
		log.Info("start-up policy applied", "op", string(res.Op), "policy_id", res.PolicyID, "version", res.Version)
	}

	observers := []enforce.Option{
		enforce.WithObserver(g.hub.Observe),
		enforce.WithObserver(g.metrics.ObserveDecision),
		enforce.WithTracer(g.tracer.Tracer()),
	}
	if cfg.Evidence.Enabled {
		if err := g.buildEvidence(ctx); err != nil {
			return nil, err
		}
		observers = append(observers, enforce.WithObserver(g.recorder.Observe))
	}

	if g.engine, g.journal, err = newEngine(cfg, g.store, log, observers...); err != nil {
		return nil, err
	}

	if err := g.buildAccess(ctx); err != nil {
		return nil, err
	}

	g.server, err = server.NewServer(cfg, server.Dependencies{
		Engine:   g.engine,
		Store:    g.store,
		Log:      g.journal,
		Verifier: g.registry,
		Hub:      g.hub,
		Evidence: g.evidence,
		Metrics:  g.metrics,
		Health:   g.health,
		Tracer:   g.tracer,
		Logger:   log,
		TLS:      g.tls,
		Keys:     g.keys,
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// buildAccess loads the TLS certificate and the API keys when enabled. The
// certificate is re-read on rotation until ctx is done.
func (g *governor) buildAccess(ctx context.Context) error {
	cfg := &g.cfg.Server
	if cfg.TLS.Enabled {
		reloader := govtls.NewReloader(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.ReloadInterval, g.logger.Logger)
		if err := reloader.Start(ctx); err != nil {
			return cli.NewConfigError("server.tls", err.Error())
		}
		tc, err := govtls.Build(&cfg.TLS, reloader)
		if err != nil {
			return cli.NewConfigError("server.tls", err.Error())
		}
		g.tls = tc
		g.health.RegisterCheck(health.CheckTLS, reloader.Check)
	}
	if cfg.Auth.Enabled {
		g.keys = auth.NewKeySet(cfg.Auth.Keys)
	}
	return nil
}

// buildEvidence opens the archive, the optional Redis mirror and the
// recorder feeding them.
func (g *governor) buildEvidence(ctx context.Context) error {
	cfg := &g.cfg.Evidence
	s, err := openEvidence(ctx, cfg)
	if err != nil {
		return err
	}
	g.evidence = s
	g.onClose(s.Close)
	g.health.RegisterCheck(health.CheckEvidence, health.PingCheck(s))

	opts := []recorder.Option{
		recorder.WithLogger(g.logger.Logger),
		recorder.WithWriteHook(g.metrics.RecordEvidenceWrite),
	}
	if cfg.Redis.Enabled {
		g.sink, err = sink.NewRedisSink(ctx, &sink.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
			MaxLen:   cfg.Redis.MaxLen,
		})
		if err != nil {
			return fmt.Errorf("failed to connect evidence sink: %w", err)
		}
		g.onClose(g.sink.Close)
		g.health.RegisterAdvisory(health.CheckEvidenceSink, health.PingCheck(g.sink))
		opts = append(opts, recorder.WithForwarder(g.sink))
	}

	g.recorder = recorder.NewRecorder(s, &recorder.Config{
		Enabled:      true,
		NodeID:       g.cfg.Engine.NodeID,
		AsyncBuffer:  cfg.Recorder.AsyncBuffer,
		WriteTimeout: cfg.Recorder.WriteTimeout,
		HashState:    cfg.Recorder.HashState,
		SkipAllow:    cfg.Recorder.SkipAllow,
	}, opts...)
	g.onClose(g.recorder.Close)
	return nil
}

// startSources starts the retention scheduler, the policy inbox, the Git
// syncer and the state bus consumer as configured. They stop when ctx is
// done or the governor is closed.
func (g *governor) startSources(ctx context.Context) error {
	cfg := g.cfg
	log := g.logger.Logger

	if g.evidence != nil && cfg.Evidence.Retention.PruneSchedule != "" {
		pruner := retention.NewPruner(g.evidence, retentionConfig(&cfg.Evidence.Retention), retention.WithLogger(log))
		scheduler := retention.NewScheduler(pruner,
			retention.WithSchedulerLogger(log),
			retention.WithRunHook(g.metrics.RecordEvidencePrune),
		)
		if err := scheduler.Start(ctx); err != nil {
			return cli.NewConfigError("evidence.retention.prune_schedule", err.Error())
		}
		g.onClose(func() error { scheduler.Stop(); return nil })
		if next := scheduler.NextRun(); next != nil {
			log.Debug("evidence retention scheduler started", "next_run", next)
		}
	}

	if cfg.Policies.Inbox.Enabled {
		if err := os.MkdirAll(cfg.Policies.Inbox.Dir, 0o750); err != nil {
			return fmt.Errorf("failed to create inbox: %w", err)
		}
		w, err := inbox.NewWatcher(&inbox.Config{
			Dir:              cfg.Policies.Inbox.Dir,
			DebounceInterval: cfg.Policies.Inbox.DebounceInterval,
		}, g.store, g.registry, log)
		if err != nil {
			return fmt.Errorf("failed to create inbox watcher: %w", err)
		}
		g.onClose(w.Stop)
		if n, err := w.Scan(); err != nil {
			return err
		} else if n > 0 {
			log.Info("inbox documents applied at start-up", "count", n)
		}
		go func() {
			if err := w.Watch(ctx); err != nil {
				log.Error("inbox watcher failed", "error", err)
			}
		}()
	}

	if cfg.Policies.Git.Enabled {
		repo, err := git.NewRepository(&cfg.Policies.Git)
		if err != nil {
			return cli.NewConfigError("policies.git", err.Error())
		}
		if err := repo.Clone(ctx); err != nil {
			return fmt.Errorf("failed to clone policy repository: %w", err)
		}
		syncer := git.NewSyncer(repo, g.store, g.registry, cfg.Policies.Git.Poll.Interval, log)
		if err := syncer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start policy syncer: %w", err)
		}
		g.onClose(syncer.Stop)
		g.health.RegisterAdvisory(health.CheckPolicyGit, health.RunningCheck("policy syncer", syncer))
	}

	if cfg.StateBus.Enabled {
		if err := g.startStateBus(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (g *governor) startStateBus(ctx context.Context) error {
	cfg := g.cfg
	cp, ok := policy.ParseCheckpoint(cfg.StateBus.Checkpoint)
	if !ok {
		return cli.NewConfigError("statebus.checkpoint", fmt.Sprintf("unknown checkpoint %q", cfg.StateBus.Checkpoint))
	}

	consumerCfg, publisherCfg := statebus.FromConfig(&cfg.StateBus)
	consumer, err := statebus.NewKafkaConsumer(consumerCfg)
	if err != nil {
		return cli.NewConfigError("statebus", err.Error())
	}
	opts := []statebus.Option{
		statebus.WithCheckpoint(cp),
		statebus.WithTimeout(cfg.Engine.Timeout),
		statebus.WithTracer(g.tracer.Tracer()),
		statebus.WithLogger(g.logger.Logger),
		statebus.WithResultHook(g.metrics.RecordStateBusMessage),
	}
	if publisherCfg != nil {
		publisher, err := statebus.NewKafkaPublisher(*publisherCfg)
		if err != nil {
			_ = consumer.Close()
			return cli.NewConfigError("statebus", err.Error())
		}
		opts = append(opts, statebus.WithPublisher(publisher))
	}

	processor, err := statebus.NewProcessor(consumer, g.engine, opts...)
	if err != nil {
		_ = consumer.Close()
		return err
	}
	g.onClose(processor.Close)
	go func() {
		if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			g.logger.Error("state bus processor stopped", "error", err)
		}
	}()
	return nil
}

// reload applies the parts of a new configuration that can change without
// a restart.
func (g *governor) reload(cfg *config.Config) {
	if err := g.logger.SetLevel(cfg.Telemetry.Logging.Level); err != nil {
		g.logger.Warn("log level not changed", "error", err)
	}
	if g.keys != nil && cfg.Server.Auth.Enabled {
		g.keys.Replace(cfg.Server.Auth.Keys)
	}
	set, err := checkpointSet(cfg.Engine.Checkpoints)
	if err != nil {
		g.logger.Warn("checkpoints not changed", "error", err)
		return
	}
	for _, cp := range policy.Checkpoints() {
		if set.Has(cp) {
			g.engine.EnableCheckpoint(cp)
		} else {
			g.engine.DisableCheckpoint(cp)
		}
	}
	g.logger.Info("configuration reloaded", "checkpoints", set.String(), "log_level", cfg.Telemetry.Logging.Level)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger.Logger)

	out := cmd.OutOrStdout()
	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

	if runFlags.dryRun {
		return dryRun(ctx, out, cfg, logger)
	}

	printBanner(out, cfg)
	g, err := buildGovernor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer g.close()
	fmt.Fprintf(out, "✓ Policy store ready (%d/%d active)\n", g.store.Count(), g.store.Capacity())
	if g.evidence != nil {
		fmt.Fprintf(out, "✓ Evidence archive initialized (%s)\n", cfg.Evidence.Backend)
	}

	if err := g.startSources(ctx); err != nil {
		return err
	}

	config.OnReload(g.reload)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := config.ReloadConfig(cfgFile); err != nil {
					logger.Error("configuration reload failed", "error", err)
				}
			}
		}
	}()

	scheme := "http"
	if g.tls != nil {
		scheme = "https"
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Server listening on %s://%s\n", scheme, cfg.Server.ListenAddress)
	fmt.Fprintf(out, "✓ Health endpoint: %s://%s%s\n", scheme, cfg.Server.ListenAddress, cfg.Telemetry.Health.ReadinessPath)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: %s://%s%s\n", scheme, cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	if g.keys != nil {
		fmt.Fprintf(out, "✓ API key required on /v1 (%d key(s))\n", g.keys.Len())
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := g.server.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// dryRun builds the store and admits the start-up policies without opening
// any backend.
func dryRun(ctx context.Context, out io.Writer, cfg *config.Config, logger *logging.Logger) error {
	registry, err := newRegistry(&cfg.Signature)
	if err != nil {
		return err
	}
	st, err := newStore(cfg, logger.Logger)
	if err != nil {
		return err
	}
	if _, err := applyFiles(st, registry, cfg.Policies.Files); err != nil {
		return cli.NewCommandError("run", err)
	}
	if _, err := checkpointSet(cfg.Engine.Checkpoints); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Configuration valid")
	fmt.Fprintf(out, "✓ %d start-up policies admitted (%d/%d active)\n", len(cfg.Policies.Files), st.Count(), st.Capacity())
	return nil
}

func printBanner(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "Governor v%s\n", buildinfo.Version)
	if cfgFile != "" {
		fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	}
	fmt.Fprintln(out, "✓ Configuration loaded")

	slog.Debug("engine configured",
		"node_id", cfg.Engine.NodeID,
		"checkpoints", cfg.Engine.Checkpoints,
		"log_capacity", cfg.Engine.LogCapacity)
	if cfg.Evidence.Enabled {
		slog.Debug("evidence enabled", "backend", cfg.Evidence.Backend)
	}
	if cfg.Policies.Git.Enabled {
		slog.Debug("policy source", "type", "git", "repository", cfg.Policies.Git.Repository)
	}
	if cfg.Policies.Inbox.Enabled {
		slog.Debug("policy source", "type", "inbox", "dir", cfg.Policies.Inbox.Dir)
	}
}
