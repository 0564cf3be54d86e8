// Command relaycc-producer runs the relaycc routing core: it accepts
// worker connections over the bidirectional Connect stream, serves the
// client-facing Dispatch/AwaitWorker/NextResult API, and exposes a
// dashboard/metrics HTTP surface alongside it.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/relaycc/relaycc/internal/config"
	"github.com/relaycc/relaycc/internal/discovery/mdns"
	"github.com/relaycc/relaycc/internal/observability/dashboard"
	"github.com/relaycc/relaycc/internal/observability/tracing"
	"github.com/relaycc/relaycc/internal/producer"
	"github.com/relaycc/relaycc/internal/resilience"
	"github.com/relaycc/relaycc/internal/security/tls"
	"github.com/relaycc/relaycc/internal/transport"
)

var version = "v0.0.0-dev"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd := &cobra.Command{
		Use:   "relaycc-producer",
		Short: "relaycc producer: worker registration, routing and dispatch",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relaycc-producer %s\n", version)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the producer",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "path to a relaycc config file (see config.WriteExample); falls back to ./relaycc.yaml, $HOME/.config/relaycc, /etc/relaycc")
	serveCmd.Flags().Int("grpc-port", 50051, "gRPC server port (worker and client traffic)")
	serveCmd.Flags().Int("http-port", 8080, "dashboard and metrics HTTP port")
	serveCmd.Flags().Bool("insecure", true, "disable TLS on the gRPC listener")
	serveCmd.Flags().Bool("no-mdns", false, "disable mDNS advertisement")
	serveCmd.Flags().Bool("tracing", false, "enable OpenTelemetry tracing")

	rootCmd.AddCommand(versionCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	grpcPort := cfg.Producer.GRPCPort
	if cmd.Flags().Changed("grpc-port") {
		grpcPort, _ = cmd.Flags().GetInt("grpc-port")
	}
	httpPort := cfg.Producer.DashboardPort
	if cmd.Flags().Changed("http-port") {
		httpPort, _ = cmd.Flags().GetInt("http-port")
	}
	insecureMode := !cfg.Producer.TLS.Enabled
	if cmd.Flags().Changed("insecure") {
		insecureMode, _ = cmd.Flags().GetBool("insecure")
	}
	noMdns := !cfg.Producer.MDNSEnable
	if cmd.Flags().Changed("no-mdns") {
		noMdns, _ = cmd.Flags().GetBool("no-mdns")
	}
	tracingEnabled, _ := cmd.Flags().GetBool("tracing")

	log.Info().Int("grpc_port", grpcPort).Int("http_port", httpPort).Str("version", version).Msg("starting relaycc producer")

	ctx := cmd.Context()

	if tracingEnabled {
		tracingCfg := tracing.ProducerConfig()
		tp, err := tracing.Init(ctx, tracingCfg)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize tracing, continuing without it")
		} else {
			defer tp.Shutdown(ctx)
		}
	}

	circuit := resilience.NewCircuitManager(resilience.DefaultCircuitConfig())
	var scheduler producer.Scheduler
	if cfg.Producer.Scheduler == "least_busy" {
		scheduler = producer.NewLeastBusyScheduler(circuit)
	} else {
		scheduler = producer.NewRoundRobinScheduler(circuit)
	}

	p := producer.New(producer.Config{Scheduler: scheduler, Circuit: circuit})
	defer p.Close()

	var serverOpts []grpc.ServerOption
	serverOpts = append(serverOpts, tracing.ServerOptions()...)
	if !insecureMode {
		creds, err := tls.ServerCredentials(cfg.Producer.TLS)
		if err != nil {
			return fmt.Errorf("load TLS credentials: %w", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}

	grpcServer := grpc.NewServer(serverOpts...)
	transport.RegisterCompilerServiceServer(grpcServer, p)
	transport.RegisterClientAPIServer(grpcServer, producer.NewClientAPIServer(p))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		return fmt.Errorf("listen on grpc port: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Int("port", grpcPort).Msg("producer gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	dashCfg := dashboard.DefaultConfig()
	dashCfg.Port = httpPort
	dashSrv := dashboard.New(dashCfg, p.NewStatsProvider())
	go func() {
		if err := dashSrv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("dashboard server: %w", err)
		}
	}()
	log.Info().Int("port", httpPort).Msg("dashboard server started")

	var announcer *mdns.Announcer
	if !noMdns {
		hostname, _ := os.Hostname()
		announcer = mdns.NewAnnouncer(mdns.AnnouncerConfig{
			Instance:   fmt.Sprintf("relaycc-producer-%s", hostname),
			GRPCPort:   grpcPort,
			HTTPPort:   httpPort,
			Version:    version,
			InstanceID: fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		})
		if err := announcer.Start(); err != nil {
			log.Warn().Err(err).Msg("failed to start mDNS announcer, continuing without it")
			announcer = nil
		} else {
			log.Info().Str("service", mdns.ServiceType).Msg("producer discoverable via mDNS")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
	}

	if announcer != nil {
		announcer.Stop()
	}
	dashSrv.Stop()
	grpcServer.GracefulStop()
	return nil
}
