package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/chainsync/internal/core/checkpoint"
	"github.com/vietddude/chainsync/internal/core/domain"
	"github.com/vietddude/chainsync/internal/infra/storage"
	"github.com/vietddude/chainsync/internal/infra/storage/postgres"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or change the persisted consumer checkpoint",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted checkpoint",
	Args:  cobra.NoArgs,
	Run: withCheckpoints(func(ctx context.Context, repo storage.CheckpointRepository, _ []string) error {
		cp, err := repo.Get(ctx)
		if errors.Is(err, storage.ErrCheckpointNotFound) {
			fmt.Println("No checkpoint persisted, sync starts from the beginning")
			return nil
		}
		if err != nil {
			return err
		}
		printCheckpoint(os.Stdout, cp)
		return nil
	}),
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the persisted checkpoint so the next run starts from the beginning",
	Args:  cobra.NoArgs,
	Run: withCheckpoints(func(ctx context.Context, repo storage.CheckpointRepository, _ []string) error {
		if err := repo.Reset(ctx); err != nil {
			return err
		}
		fmt.Println("Successfully reset checkpoint")
		return nil
	}),
}

var checkpointSetCmd = &cobra.Command{
	Use:   "set [encoded_checkpoint]",
	Short: "Overwrite the persisted checkpoint with an encoded checkpoint",
	Args:  cobra.ExactArgs(1),
	Run: withCheckpoints(func(ctx context.Context, repo storage.CheckpointRepository, args []string) error {
		cp, err := checkpoint.Decode(args[0])
		if err != nil {
			return fmt.Errorf("invalid checkpoint: %w", err)
		}
		if err := repo.Save(ctx, cp); err != nil {
			return err
		}
		fmt.Printf("Successfully set checkpoint to %s\n", checkpoint.String(cp))
		return nil
	}),
}

func init() {
	checkpointCmd.AddCommand(checkpointShowCmd, checkpointResetCmd, checkpointSetCmd)
	rootCmd.AddCommand(checkpointCmd)
}

// withCheckpoints opens the configured database for a checkpoint command.
func withCheckpoints(
	fn func(ctx context.Context, repo storage.CheckpointRepository, args []string) error,
) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.Database.URL == "" {
			slog.Error("Checkpoint commands need database.url; memory storage is not persisted")
			os.Exit(1)
		}

		ctx := context.Background()
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = db.Close()
		}()

		if err := fn(ctx, postgres.NewCheckpointRepo(db), args); err != nil {
			slog.Error("Checkpoint command failed", "command", cmd.Name(), "error", err)
			os.Exit(1)
		}
	}
}

func printCheckpoint(out io.Writer, cp domain.Checkpoint) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TIMESTAMP\tCHAIN\tBLOCK\tTX\tLOG")
	_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n",
		cp.BlockTimestamp, cp.ChainID, cp.BlockNumber,
		index(cp.TransactionIndex), index(cp.LogIndex))
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "encoded: %s\n", checkpoint.Encode(cp))
}

func index(v uint64) string {
	if v == ^uint64(0) {
		return "max"
	}
	return fmt.Sprint(v)
}
