package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/antigravity-dev/backplane/internal/backend"
	"github.com/antigravity-dev/backplane/internal/config"
	"github.com/antigravity-dev/backplane/internal/contract"
	"github.com/antigravity-dev/backplane/internal/runtime"
	"github.com/antigravity-dev/backplane/internal/sidecar"
	"github.com/antigravity-dev/backplane/internal/store"
)

func configureLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: abp [-config FILE] COMMAND [ARGS]

commands:
  run       submit a work order and stream its events
  list      list stored receipts
  verify    verify one receipt or the whole chain
  backends  list registered backends and their capabilities
`)
	os.Exit(2)
}

func main() {
	configPath := flag.String("config", "", "path to abp.toml")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "abp:", err)
		os.Exit(1)
	}
	logger := configureLogger(cfg.General.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch flag.Arg(0) {
	case "run":
		code = cmdRun(ctx, cfg, logger, flag.Args()[1:])
	case "list":
		code = cmdList(cfg)
	case "verify":
		code = cmdVerify(cfg, flag.Args()[1:])
	case "backends":
		code = cmdBackends(ctx, cfg, logger)
	default:
		usage()
	}
	os.Exit(code)
}

// buildRegistry registers the mock backend plus every discovered sidecar
// descriptor under sidecar:<name>.
func buildRegistry(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend.Registry, error) {
	registry := backend.NewRegistry()
	if err := registry.Register("mock", backend.NewMock()); err != nil {
		return nil, err
	}

	descriptors, err := sidecar.Discover(cfg.Sidecars.Dir)
	if err != nil {
		return nil, err
	}
	retryCfg := sidecar.RetryConfig{
		MaxRetries:     cfg.Retry.MaxRetries,
		BaseDelay:      cfg.Retry.BaseDelay.Duration,
		MaxDelay:       cfg.Retry.MaxDelay.Duration,
		OverallTimeout: cfg.Retry.OverallTimeout.Duration,
		JitterFactor:   cfg.Retry.JitterFactor,
	}
	for _, d := range descriptors {
		spec := d.Spec()
		if spec.HelloTimeout <= 0 {
			spec.HelloTimeout = cfg.Sidecars.HelloTimeout.Duration
		}
		sb, err := backend.NewSidecarBackend(ctx, spec, retryCfg, logger)
		if err != nil {
			logger.Warn("skipping unreachable sidecar", "name", d.Name, "error", err)
			continue
		}
		if err := registry.Register(d.RegistryKey(), sb); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func buildRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime.Runtime, error) {
	registry, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	receipts, err := store.NewFileStore(cfg.Receipts.Dir)
	if err != nil {
		return nil, err
	}
	opts := runtime.Options{
		Store:          receipts,
		Logger:         logger,
		EventBuffer:    cfg.General.EventBuffer,
		MaxRunDuration: cfg.Budget.MaxRunDuration.Duration,
	}
	if cfg.Receipts.IndexDB != "" {
		index, err := store.OpenIndex(cfg.Receipts.IndexDB)
		if err != nil {
			return nil, err
		}
		opts.Index = index
	}
	return runtime.New(registry, opts), nil
}

func cmdRun(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	backendName := fs.String("backend", "mock", "backend to dispatch to")
	task := fs.String("task", "", "task description")
	root := fs.String("workspace", ".", "workspace root")
	staged := fs.Bool("staged", false, "stage a copy of the workspace")
	lane := fs.String("lane", string(contract.LanePatchFirst), "execution lane")
	model := fs.String("model", "", "model hint")
	_ = fs.Parse(args)

	if strings.TrimSpace(*task) == "" {
		fmt.Fprintln(os.Stderr, "abp run: -task is required")
		return 2
	}

	mode := contract.ModePassThrough
	if *staged {
		mode = contract.ModeStaged
	}
	builder := contract.NewWorkOrder(*task).
		Lane(contract.ExecutionLane(*lane)).
		Workspace(*root, mode)
	if *model != "" {
		builder.Model(*model)
	}
	wo := builder.Build()

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "abp run:", err)
		return 1
	}

	handle, err := rt.RunStreaming(ctx, *backendName, wo)
	if err != nil {
		fmt.Fprintln(os.Stderr, "abp run:", err)
		return 1
	}
	for ev := range handle.Events {
		switch ev.Type {
		case contract.EventAssistantDelta:
			fmt.Print(ev.Text)
		case contract.EventAssistantMessage:
			fmt.Println(ev.Text)
		default:
			fmt.Printf("[%s] %s%s\n", ev.Type, ev.Message, ev.Path)
		}
	}

	receipt, err := handle.Receipt(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "abp run:", err)
		return 1
	}
	fmt.Printf("run %s: %s (%d events, %dms) receipt %s\n",
		receipt.Meta.RunID, receipt.Outcome, len(receipt.Trace),
		receipt.Meta.DurationMS, receipt.ReceiptSHA256[:12])
	return 0
}

func cmdList(cfg config.Config) int {
	receipts, err := store.NewFileStore(cfg.Receipts.Dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "abp list:", err)
		return 1
	}
	list, err := receipts.List()
	if err != nil {
		fmt.Fprintln(os.Stderr, "abp list:", err)
		return 1
	}
	for _, r := range list {
		fmt.Printf("%s  %-22s %-8s %6dms  %s\n",
			r.Meta.StartedAt.Format("2006-01-02T15:04:05Z"),
			r.Backend.ID, r.Outcome, r.Meta.DurationMS, r.Meta.RunID)
	}
	return 0
}

func cmdVerify(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	id := fs.String("id", "", "run id to verify (default: whole chain)")
	_ = fs.Parse(args)

	receipts, err := store.NewFileStore(cfg.Receipts.Dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "abp verify:", err)
		return 1
	}

	if *id != "" {
		runID, err := uuid.Parse(*id)
		if err != nil {
			fmt.Fprintln(os.Stderr, "abp verify:", err)
			return 2
		}
		ok, err := receipts.Verify(runID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "abp verify:", err)
			return 1
		}
		if !ok {
			fmt.Printf("%s: INVALID\n", runID)
			return 1
		}
		fmt.Printf("%s: ok\n", runID)
		return 0
	}

	report, err := receipts.VerifyChain()
	if err != nil {
		fmt.Fprintln(os.Stderr, "abp verify:", err)
		return 1
	}
	fmt.Printf("chain: %d valid, %d invalid, %d gaps\n",
		report.ValidCount, len(report.InvalidHashes), len(report.Gaps))
	for _, bad := range report.InvalidHashes {
		fmt.Printf("invalid: %s\n", bad)
	}
	if !report.IsValid {
		return 1
	}
	return 0
}

func cmdBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	registry, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "abp backends:", err)
		return 1
	}
	manifests := registry.Manifests()
	for _, name := range registry.Names() {
		fmt.Printf("%s:\n", name)
		for _, cap := range contract.KnownCapabilities() {
			if level, ok := manifests[name][cap]; ok {
				fmt.Printf("  %-32s %s\n", cap, level)
			}
		}
	}
	return 0
}
