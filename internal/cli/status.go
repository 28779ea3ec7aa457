package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/paywatch/internal/core/config"
	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage/postgres"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show watch counts and the most recent watches",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of recent watches to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
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

	repo := postgres.NewWatchRepo(db)

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		slog.Error("Failed to count watches", "error", err)
		os.Exit(1)
	}

	fmt.Printf("pending: %d  completed: %d  expired: %d  failed: %d\n\n",
		counts[domain.WatchStatusPending],
		counts[domain.WatchStatusCompleted],
		counts[domain.WatchStatusExpired],
		counts[domain.WatchStatusFailed])

	recent, err := repo.ListRecent(ctx, statusLimit)
	if err != nil {
		slog.Error("Failed to list watches", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tORDER\tADDRESS\tAMOUNT\tSTATUS\tEXPIRES")

	for _, watch := range recent {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			watch.ID,
			watch.OrderID,
			watch.Address,
			watch.ExpectedAmount.String(),
			watch.Status,
			watch.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
	_ = w.Flush()
}
