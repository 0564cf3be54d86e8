package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Table wraps tablewriter with relaycc-specific functionality.
type Table struct {
	table *tablewriter.Table
}

// TableConfig holds table configuration options.
type TableConfig struct {
	Writer   io.Writer
	NoHeader bool
	Center   bool
}

// NewTable creates a new table with the given headers.
func NewTable(headers []string) *Table {
	return NewTableWithConfig(headers, TableConfig{})
}

// NewTableWithConfig creates a table with custom configuration.
func NewTableWithConfig(headers []string, cfg TableConfig) *Table {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	t := tablewriter.NewWriter(writer)

	if !cfg.NoHeader && len(headers) > 0 {
		t.SetHeader(headers)
	}

	// Default styling
	t.SetBorder(false)
	t.SetHeaderLine(true)
	t.SetColumnSeparator(" ")
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(false)

	if cfg.Center {
		t.SetAlignment(tablewriter.ALIGN_CENTER)
	}

	return &Table{table: t}
}

// Append adds a row to the table.
func (t *Table) Append(row []string) {
	t.table.Append(row)
}

// AppendBulk adds multiple rows to the table.
func (t *Table) AppendBulk(rows [][]string) {
	t.table.AppendBulk(rows)
}

// Render outputs the table.
func (t *Table) Render() {
	t.table.Render()
}

// SetColWidth sets the column width for a specific column.
func (t *Table) SetColWidth(width int) {
	t.table.SetColWidth(width)
}

// CompileSummary holds outcome counts for one or more dispatches, for the
// CLI's end-of-run summary (spec §4.E: a dispatch resolves to success or
// failure plus diagnostic bytes, nothing else).
type CompileSummary struct {
	Total       int
	Succeeded   int
	Failed      int
	Duration    time.Duration
	TasksFailed []string
}

// PrintCompileSummary prints a colored compile summary table.
func PrintCompileSummary(stats CompileSummary) {
	fmt.Println()
	fmt.Println(Bold("Compile Summary"))
	fmt.Println("───────────────")

	table := NewTable([]string{"Metric", "Value"})
	table.table.SetBorder(false)

	table.Append([]string{"Total Files", fmt.Sprintf("%d", stats.Total)})

	if stats.Succeeded > 0 {
		table.Append([]string{"Succeeded", Success(fmt.Sprintf("%d", stats.Succeeded))})
	}

	if stats.Failed > 0 {
		table.Append([]string{"Failed", Error(fmt.Sprintf("%d", stats.Failed))})
	}

	table.Append([]string{"Duration", fmt.Sprintf("%.2fs", stats.Duration.Seconds())})

	table.Render()

	if len(stats.TasksFailed) > 0 && len(stats.TasksFailed) <= 5 {
		fmt.Println()
		fmt.Println(Error("Failed files:"))
		for _, f := range stats.TasksFailed {
			fmt.Printf("  • %s\n", f)
		}
	}

	fmt.Println()
}

// WorkerInfo holds worker information for the workers table.
type WorkerInfo struct {
	ID           string
	Lang         string
	Version      string
	Procarch     string
	ActiveTasks  int
	CircuitState string
}

// PrintWorkersTable prints a colored workers table.
func PrintWorkersTable(workers []WorkerInfo, totalWorkers, healthyWorkers int) {
	if len(workers) == 0 {
		fmt.Println(Warning("No workers connected"))
		return
	}

	fmt.Printf("Workers: %s total, %s healthy\n\n",
		Bold(fmt.Sprintf("%d", totalWorkers)),
		Success(fmt.Sprintf("%d", healthyWorkers)))

	table := NewTable([]string{"ID", "LANG", "VERSION", "ARCH", "TASKS", "STATUS"})

	for _, w := range workers {
		status := WorkerStatus(w.CircuitState)

		table.Append([]string{
			truncateString(w.ID, 20),
			w.Lang,
			w.Version,
			w.Procarch,
			fmt.Sprintf("%d", w.ActiveTasks),
			status,
		})
	}

	table.Render()
}

// PrintWorkersTableCompact prints a compact workers table (no version/arch columns).
func PrintWorkersTableCompact(workers []WorkerInfo, totalWorkers, healthyWorkers int) {
	if len(workers) == 0 {
		fmt.Println(Warning("No workers connected"))
		return
	}

	fmt.Printf("Workers: %s total, %s healthy\n\n",
		Bold(fmt.Sprintf("%d", totalWorkers)),
		Success(fmt.Sprintf("%d", healthyWorkers)))

	table := NewTable([]string{"ID", "LANG", "STATUS"})

	for _, w := range workers {
		status := WorkerStatus(w.CircuitState)

		table.Append([]string{
			truncateString(w.ID, 20),
			w.Lang,
			status,
		})
	}

	table.Render()
}

// ProducerStatus holds producer status information.
type ProducerStatus struct {
	Address        string
	Healthy        bool
	ActiveTasks    int
	PendingResults int
	Workers        int
	Uptime         time.Duration
}

// PrintStatus prints a colored status summary.
func PrintStatus(status ProducerStatus) {
	fmt.Println(Bold("Producer Status"))
	fmt.Println("────────────────")

	table := NewTable([]string{})
	table.table.SetHeader(nil)

	table.Append([]string{"Address:", Info(status.Address)})
	table.Append([]string{"Status:", Healthy(status.Healthy)})
	table.Append([]string{"Active Tasks:", fmt.Sprintf("%d", status.ActiveTasks)})
	table.Append([]string{"Pending Results:", fmt.Sprintf("%d", status.PendingResults)})

	if status.Workers > 0 {
		table.Append([]string{"Workers:", fmt.Sprintf("%d", status.Workers)})
	}

	if status.Uptime > 0 {
		table.Append([]string{"Uptime:", formatDuration(status.Uptime)})
	}

	table.Render()
}

// truncateString truncates a string to the given max length.
func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	} else if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", mins, secs)
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh%dm", hours, mins)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd%dh", days, hours)
}
