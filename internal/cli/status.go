package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/indexing/health"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync status of a running chainsync instance",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "health server address (default localhost:<server.port>)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	addr := statusAddr
	if addr == "" {
		cfg := loadConfig()
		addr = fmt.Sprintf("localhost:%d", cfg.Server.Port)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report, err := fetchReport(ctx, "http://"+addr+"/health/detailed")
	if err != nil {
		slog.Error("Failed to fetch status", "addr", addr, "error", err)
		os.Exit(1)
	}
	printReport(os.Stdout, report)
}

func fetchReport(ctx context.Context, url string) (health.HealthReport, error) {
	var report health.HealthReport
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return report, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return report, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return report, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return report, fmt.Errorf("decode report: %w", err)
	}
	return report, nil
}

func printReport(out io.Writer, report health.HealthReport) {
	_, _ = fmt.Fprintf(out, "status: %s  killed: %t\n", report.SystemStatus, report.Sync.Killed)
	_, _ = fmt.Fprintf(out, "checkpoint: %s\n", checkpoint.String(report.Sync.Checkpoint))
	_, _ = fmt.Fprintf(out, "finalized:  %s\n\n", checkpoint.String(report.Sync.FinalizedCheckpoint))

	phases := make(map[string]health.NetworkHealth, len(report.Networks))
	for _, n := range report.Networks {
		phases[n.Name] = n
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "NETWORK\tCHAIN\tPHASE\tSTATUS\tBLOCK\tAGE")
	for _, n := range report.Sync.Networks {
		h := phases[n.Name]
		block := "-"
		switch {
		case n.RealtimeCheckpoint != nil:
			block = fmt.Sprint(n.RealtimeCheckpoint.BlockNumber)
		case n.HistoricalCheckpoint != nil:
			block = fmt.Sprint(n.HistoricalCheckpoint.BlockNumber)
		}
		age := h.CheckpointAge
		if age == "" {
			age = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", n.Name, n.ChainID, h.Phase, h.Status, block, age)
	}
	_ = w.Flush()
}
