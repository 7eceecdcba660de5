package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/debris-collision-sim/internal/config"
	"github.com/signalsfoundry/debris-collision-sim/internal/feed"
	"github.com/signalsfoundry/debris-collision-sim/internal/logging"
	"github.com/signalsfoundry/debris-collision-sim/internal/nbi"
	"github.com/signalsfoundry/debris-collision-sim/internal/observability"
	"github.com/signalsfoundry/debris-collision-sim/internal/risk"
	"github.com/signalsfoundry/debris-collision-sim/internal/sim/session"
	"github.com/signalsfoundry/debris-collision-sim/timectrl"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sim-server: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LoggingConfig(os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "sim-server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the control API on lis and the metrics and feed endpoints on
// their configured addresses (empty disables them) while the tick loop drives
// the session. It returns once ctx is cancelled and everything has stopped.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	if log == nil {
		log = logging.Noop()
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingConfig(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	hub := feed.NewHub(feed.WithLogger(log.With(logging.String("component", "feed"))))
	defer hub.Close()

	sessOpts := []session.Option{
		session.WithLogger(log.With(logging.String("component", "session"))),
		session.WithMetricsRecorder(collector),
		session.WithPublisher(hub),
	}
	if cfg.Risk.Enabled {
		client, err := risk.NewClient(cfg.Risk.Endpoint,
			risk.WithTimeout(cfg.Risk.Timeout),
			risk.WithLogger(log.With(logging.String("component", "risk"))),
		)
		if err != nil {
			return err
		}
		sessOpts = append(sessOpts,
			session.WithAssessor(client),
			session.WithAssessmentTimeout(cfg.Risk.Timeout),
		)
	}
	sess, err := session.New(cfg.SimulationConfig(), sessOpts...)
	if err != nil {
		return err
	}
	defer sess.Wait()

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			nbi.RequestIDUnaryServerInterceptor(log),
			nbi.TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	)
	nbi.RegisterSimulationControlServer(server, nbi.NewControlService(sess, log))
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(nbi.ControlServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info(gctx, "starting control gRPC server", logging.String("addr", lis.Addr().String()))
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})

	var httpServers []*http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		httpServers = append(httpServers, &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux})
	}
	if cfg.Server.FeedAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		httpServers = append(httpServers, &http.Server{Addr: cfg.Server.FeedAddr, Handler: mux})
	}
	for _, srv := range httpServers {
		srv := srv
		g.Go(func() error {
			log.Info(gctx, "starting HTTP server", logging.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	tc := timectrl.NewTimeController(cfg.Clock.Tick, cfg.ClockMode())
	tc.AddListener(func(uint64) {
		sess.Step(gctx)
	})
	g.Go(func() error {
		<-tc.Start(gctx, cfg.Clock.MaxTicks)
		log.Info(gctx, "tick loop stopped", logging.Uint64("ticks", tc.Ticks()))
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down sim-server")
		healthSrv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range httpServers {
			_ = srv.Shutdown(shutdownCtx)
		}
		hub.Close()

		stopped := make(chan struct{})
		go func() {
			server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			server.Stop()
		}
		return nil
	})

	return g.Wait()
}
