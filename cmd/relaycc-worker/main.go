// Command relaycc-worker runs a single-toolchain compile worker: it
// dials the producer, registers its language/version/procarch, and
// serves compile requests in receipt order until the connection drops,
// reconnecting with backoff (spec §4.A, §4.C).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/relaycc/relaycc/internal/capability"
	"github.com/relaycc/relaycc/internal/config"
	"github.com/relaycc/relaycc/internal/discovery/mdns"
	"github.com/relaycc/relaycc/internal/pb"
	"github.com/relaycc/relaycc/internal/resilience"
	"github.com/relaycc/relaycc/internal/worker"
)

var version = "v0.0.0-dev"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd := &cobra.Command{
		Use:   "relaycc-worker",
		Short: "relaycc compile worker agent",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relaycc-worker %s\n", version)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to a producer and serve compile requests",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "path to a relaycc config file")
	serveCmd.Flags().String("producer", "", "producer address (empty for mDNS auto-discovery)")
	serveCmd.Flags().String("lang", "", "toolchain this worker serves: c, cpp, or rust (defaults to config, then \"c\")")
	serveCmd.Flags().String("compiler-version", "", "compiler version string reported at registration")
	serveCmd.Flags().Bool("insecure", true, "disable TLS on the producer connection")
	serveCmd.Flags().Int("http-port", 9090, "worker metrics/health HTTP port")
	serveCmd.Flags().Duration("discovery-timeout", 10*time.Second, "mDNS discovery timeout")

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

	producerAddr := cfg.Worker.ProducerAddr
	if cmd.Flags().Changed("producer") {
		producerAddr, _ = cmd.Flags().GetString("producer")
	}
	langFlag := cfg.Worker.Lang
	if langFlag == "" {
		langFlag = "c"
	}
	if cmd.Flags().Changed("lang") {
		langFlag, _ = cmd.Flags().GetString("lang")
	}
	compilerVersion := cfg.Worker.Version
	if cmd.Flags().Changed("compiler-version") {
		compilerVersion, _ = cmd.Flags().GetString("compiler-version")
	}
	insecure := cfg.Worker.Insecure
	if cmd.Flags().Changed("insecure") {
		insecure, _ = cmd.Flags().GetBool("insecure")
	}
	httpPort, _ := cmd.Flags().GetInt("http-port")
	discoveryTimeout, _ := cmd.Flags().GetDuration("discovery-timeout")

	lang, err := pb.ParseLanguage(langFlag)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if producerAddr == "" {
		log.Info().Dur("timeout", discoveryTimeout).Msg("no producer specified, trying mDNS discovery")
		browser := mdns.NewProducerBrowser(mdns.ProducerBrowserConfig{Timeout: discoveryTimeout})
		envProducer := os.Getenv("RELAYCC_PRODUCER")
		addr, err := browser.DiscoverWithFallback(ctx, envProducer)
		if err != nil {
			return fmt.Errorf("producer discovery failed: %w\n\nHint: start the producer with mDNS enabled, or pass --producer, or set RELAYCC_PRODUCER", err)
		}
		producerAddr = addr
	}

	if compilerVersion == "" {
		if detected, ok := capability.DetectVersion(lang); ok {
			compilerVersion = detected
			log.Info().Str("version", detected).Msg("auto-detected compiler version")
		} else {
			log.Warn().Str("lang", lang.String()).Msg("could not auto-detect compiler version, registering with empty version")
		}
	}

	procarch := capability.DetectProcarch()

	log.Info().Str("producer", producerAddr).Str("lang", lang.String()).Str("version", version).Msg("starting relaycc worker")

	reconnect := resilience.DefaultReconnectConfig()
	if cfg.Worker.ReconnectMin > 0 {
		reconnect.InitialInterval = cfg.Worker.ReconnectMin
	}
	if cfg.Worker.ReconnectMax > 0 {
		reconnect.MaxInterval = cfg.Worker.ReconnectMax
	}

	w := worker.New(worker.Config{
		ProducerAddr:   producerAddr,
		Lang:           lang,
		Version:        compilerVersion,
		Procarch:       procarch,
		Insecure:       insecure,
		TLS:            cfg.Worker.TLS,
		CompileTimeout: cfg.Worker.CompileTimeout,
		Reconnect:      reconnect,
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	metricsServer := &http.Server{Addr: fmt.Sprintf(":%d", httpPort), Handler: metricsMux}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Int("port", httpPort).Msg("worker metrics server started")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		if err := w.Run(ctx); err != nil {
			errCh <- fmt.Errorf("worker: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("worker stopped")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	metricsServer.Shutdown(shutdownCtx)
	return nil
}
