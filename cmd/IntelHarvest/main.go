// Package main is the entry point of the IntelHarvest service.
// It runs the scheduled harvest behind HTTP and gRPC servers, or a single
// harvest with -once.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"IntelHarvest/internal/biz"
	"IntelHarvest/internal/conf"
	"IntelHarvest/internal/server"
	zapLogger "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

// Exit codes of -once.
const (
	exitOK    = 0
	exitFatal = 1
	exitAlert = 2
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "IntelHarvest"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string
	// flagonce runs a single harvest and exits.
	flagonce bool

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
	flag.BoolVar(&flagonce, "once", false, "run one harvest and exit (2 on alert, 1 on failure)")
}

func newApp(logger log.Logger, gs *grpc.Server, hs *http.Server, cs *server.CronServer) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			gs,
			hs,
			cs,
		),
	)
}

func main() {
	flag.Parse()

	// Load configuration using Viper with environment variable and CLI flag support
	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		// Use fallback logger before Zap is initialized
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize Zap logger from configuration
	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}

	// Create Kratos adapter for Zap logger
	logger := zapLogger.NewKratosAdapter(zapLog)

	// Add context fields to logger
	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
		"trace.id", tracing.TraceID(),
		"span.id", tracing.SpanID(),
	)

	zapLogger.NewLogHelper(logger).Startup("IntelHarvest starting",
		"once", flagonce,
		"schedule", bc.Harvest.Schedule,
		"sources", len(bc.Harvest.Sources),
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
		"log.output_file", bc.Log.OutputFile,
	)

	if flagonce {
		code := runOnce(bc, logger)
		_ = zapLog.Sync()
		os.Exit(code)
	}
	defer zapLog.Sync()

	app, cleanup, err := wireApp(bc.Server, bc.Data, bc.Harvest, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}

// runOnce performs a single harvest and maps its outcome to an exit code.
func runOnce(bc *conf.Bootstrap, logger log.Logger) int {
	helper := log.NewHelper(logger)

	uc, cleanup, err := wireHarvest(bc.Data, bc.Harvest, logger)
	if err != nil {
		helper.Errorw("msg", "failed to initialize harvest", "error", err)
		return exitFatal
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := uc.Run(ctx, biz.TriggerOnce)
	if err != nil {
		helper.Errorw("msg", "harvest failed", "error", err)
		return exitFatal
	}
	if report.Alert {
		return exitAlert
	}
	return exitOK
}
