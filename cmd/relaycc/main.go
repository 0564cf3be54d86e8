// Command relaycc is the CLI client for the relaycc distributed compile
// service: it dispatches source files to a producer and prints the
// resolved success/diagnostics (spec §4.E — no artifacts are returned),
// and reports live producer/worker status via the dashboard HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/relaycc/relaycc/internal/cli/output"
	"github.com/relaycc/relaycc/internal/cli/session"
	"github.com/relaycc/relaycc/internal/config"
	"github.com/relaycc/relaycc/internal/discovery/mdns"
	"github.com/relaycc/relaycc/internal/pb"
)

var (
	version      = "v0.0.0-dev"
	producerAddr string
	dashboardURL string
	insecure     bool
	timeout      time.Duration
	verbose      bool
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	output.AutoDetectColors()

	// The config file, if any, seeds flag defaults; an explicit flag on
	// the command line always wins over it.
	cfg, err := config.Load(os.Getenv("RELAYCC_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: ", err)
		cfg = config.DefaultConfig()
	}

	rootCmd := &cobra.Command{
		Use:   "relaycc",
		Short: "relaycc - distributed C/C++/Rust compilation client",
		Long: `relaycc dispatches source files to a relaycc producer for remote
compilation and reports back success or diagnostic output.

Environment:
  RELAYCC_PRODUCER   producer gRPC address (default: auto-discover via mDNS)
  RELAYCC_CONFIG     path to a relaycc config file`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&producerAddr, "producer", "P", cfg.Client.ProducerAddr, "producer address (auto-discover if empty)")
	rootCmd.PersistentFlags().StringVar(&dashboardURL, "dashboard", "", "dashboard base URL for status/workers (e.g. http://localhost:8080)")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", cfg.Client.Insecure, "use insecure connection")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", cfg.Client.Timeout, "per-compile timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newVersionCmd(),
		newCompileCmd(),
		newStatusCmd(),
		newWorkersCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relaycc %s\n", version)
		},
	}
}

func newCompileCmd() *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "compile [files...]",
		Short: "Dispatch source files for remote compilation",
		Long: `Dispatch one or more source files to a relaycc producer.

Examples:
  relaycc compile main.c
  relaycc compile --lang rust src/main.rs
  relaycc compile *.cpp --lang cpp`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(args, lang)
		},
	}

	cmd.Flags().StringVarP(&lang, "lang", "l", "", "language override (c, cpp, rust); inferred from extension if empty")
	return cmd
}

func runCompile(files []string, langFlag string) error {
	addr, err := resolveProducer()
	if err != nil {
		return err
	}

	svc, err := session.New(session.Config{
		ProducerAddr: addr,
		Insecure:     insecure,
		Timeout:      timeout,
		Verbose:      verbose,
	})
	if err != nil {
		return fmt.Errorf("connect to producer %s: %w", addr, err)
	}
	defer svc.Close()

	start := time.Now()
	summary := output.CompileSummary{Total: len(files)}

	// A progress bar replaces the per-file lines once there's more than
	// one file and -v wasn't requested; verbose mode wants the
	// dispatch/result trace instead, which a bar would garble.
	var bar *output.ProgressBar
	if !verbose && len(files) > 1 {
		bar = output.CompileProgress(len(files), "Compiling")
	}

	for _, file := range files {
		lang, err := languageFor(file, langFlag)
		if err != nil {
			reportFileResult(bar, file, false, err, 0)
			summary.Failed++
			summary.TasksFailed = append(summary.TasksFailed, file)
			continue
		}

		if verbose {
			fmt.Printf("Dispatching %s (%s)...\n", file, lang.String())
		}

		res, err := svc.Compile(context.Background(), session.Request{
			SourceFile: file,
			Lang:       lang,
			Timeout:    timeout,
		})
		if err != nil {
			reportFileResult(bar, file, false, err, 0)
			summary.Failed++
			summary.TasksFailed = append(summary.TasksFailed, file)
			continue
		}

		if res.Success {
			reportFileResult(bar, file, true, nil, res.Duration)
			summary.Succeeded++
		} else {
			reportFileResult(bar, file, false, nil, res.Duration)
			if len(res.Output) > 0 {
				fmt.Fprintln(os.Stderr, string(res.Output))
			}
			summary.Failed++
			summary.TasksFailed = append(summary.TasksFailed, file)
		}
	}

	if bar != nil {
		bar.Finish()
	}

	summary.Duration = time.Since(start)
	output.PrintCompileSummary(summary)

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed to compile", summary.Failed, summary.Total)
	}
	return nil
}

// reportFileResult prints a per-file status line, or advances the
// progress bar in its place when one is active.
func reportFileResult(bar *output.ProgressBar, file string, success bool, err error, dur time.Duration) {
	if bar != nil {
		bar.Increment()
		return
	}
	if err != nil {
		fmt.Printf("%s %s (%v)\n", output.StatusIcon(false), file, err)
		return
	}
	fmt.Printf("%s %s (%.2fs)\n", output.StatusIcon(success), file, dur.Seconds())
}

// languageFor resolves the target language from an explicit flag or the
// file's extension.
func languageFor(file, langFlag string) (pb.Language, error) {
	if langFlag != "" {
		return pb.ParseLanguage(langFlag)
	}
	switch strings.ToLower(filepath.Ext(file)) {
	case ".c":
		return pb.LanguageC, nil
	case ".cpp", ".cc", ".cxx":
		return pb.LanguageCPP, nil
	case ".rs":
		return pb.LanguageRust, nil
	default:
		return pb.LanguageNone, fmt.Errorf("cannot infer language from %q, pass --lang", file)
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show producer status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats dashboardStats
			if err := fetchDashboardJSON("/api/v1/stats", &stats); err != nil {
				return err
			}

			output.PrintStatus(output.ProducerStatus{
				Address:        resolvedDashboardURL(),
				Healthy:        true,
				ActiveTasks:    int(stats.ActiveTasks),
				PendingResults: int(stats.PendingResults),
				Workers:        stats.TotalWorkers,
				Uptime:         time.Duration(stats.UptimeSeconds) * time.Second,
			})
			return nil
		},
	}
}

func newWorkersCmd() *cobra.Command {
	var verboseWorkers bool

	cmd := &cobra.Command{
		Use:   "workers",
		Short: "List workers registered with the producer",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats dashboardStats
			if err := fetchDashboardJSON("/api/v1/stats", &stats); err != nil {
				return err
			}
			var workersResp struct {
				Workers []dashboardWorker `json:"workers"`
			}
			if err := fetchDashboardJSON("/api/v1/workers", &workersResp); err != nil {
				return err
			}
			workers := workersResp.Workers

			rows := make([]output.WorkerInfo, 0, len(workers))
			for _, w := range workers {
				rows = append(rows, output.WorkerInfo{
					ID:           w.ID,
					Lang:         w.Lang,
					Version:      w.Version,
					Procarch:     w.Procarch,
					ActiveTasks:  int(w.ActiveTasks),
					CircuitState: w.CircuitState,
				})
			}

			if verboseWorkers {
				output.PrintWorkersTable(rows, stats.TotalWorkers, stats.HealthyWorkers)
			} else {
				output.PrintWorkersTableCompact(rows, stats.TotalWorkers, stats.HealthyWorkers)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verboseWorkers, "verbose", "v", false, "show version/arch columns")
	return cmd
}

// dashboardStats and dashboardWorker mirror the JSON shapes served by
// internal/observability/dashboard's HTTP API; the CLI decodes only the
// fields it displays.
type dashboardStats struct {
	ActiveTasks    int64 `json:"active_tasks"`
	PendingResults int64 `json:"pending_results"`
	TotalWorkers   int   `json:"total_workers"`
	HealthyWorkers int   `json:"healthy_workers"`
	UptimeSeconds  int64 `json:"uptime_seconds"`
}

type dashboardWorker struct {
	ID           string `json:"id"`
	Lang         string `json:"lang"`
	Version      string `json:"version"`
	Procarch     string `json:"procarch"`
	ActiveTasks  int32  `json:"active_tasks"`
	CircuitState string `json:"circuit_state"`
}

func fetchDashboardJSON(path string, out interface{}) error {
	url := resolvedDashboardURL() + path
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func resolvedDashboardURL() string {
	if dashboardURL != "" {
		return dashboardURL
	}
	return "http://localhost:8080"
}

// resolveProducer returns the producer address from the flag, the
// RELAYCC_PRODUCER environment variable, or mDNS auto-discovery.
func resolveProducer() (string, error) {
	if producerAddr != "" {
		return producerAddr, nil
	}
	if addr := os.Getenv("RELAYCC_PRODUCER"); addr != "" {
		return addr, nil
	}

	browser := mdns.NewProducerBrowser(mdns.ProducerBrowserConfig{Timeout: 3 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	discovered, err := browser.Discover(ctx)
	if err != nil {
		return "", fmt.Errorf("no --producer given and mDNS discovery failed: %w", err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "[mdns] discovered producer at %s\n", discovered.Address)
	}
	return discovered.Address, nil
}
