package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/paywatch/internal/core/config"
	"github.com/vietddude/paywatch/internal/infra/storage/postgres"
)

var cleanupAge time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete audit log entries older than the retention period",
	Run:   runCleanup,
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupAge, "older-than", 30*24*time.Hour, "delete events older than this")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
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

	deleted, err := postgres.NewEventRepo(db).DeleteBefore(ctx, time.Now().Add(-cleanupAge))
	if err != nil {
		slog.Error("Failed to delete events", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Deleted %d audit log entries\n", deleted)
}
