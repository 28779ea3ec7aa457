package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vietddude/paywatch/internal/core/config"
	"github.com/vietddude/paywatch/internal/core/watch"
	"github.com/vietddude/paywatch/internal/infra/storage/postgres"
	"github.com/vietddude/paywatch/internal/service"
)

var watchTTL time.Duration

var createCmd = &cobra.Command{
	Use:   "create [address] [amount] [order_id] [callback_url]",
	Short: "Register a payment watch",
	Args:  cobra.ExactArgs(4),
	Run:   runCreate,
}

var getCmd = &cobra.Command{
	Use:   "get [watch_id]",
	Short: "Show one watch and its audit log",
	Args:  cobra.ExactArgs(1),
	Run:   runGet,
}

var failReason string

var failCmd = &cobra.Command{
	Use:   "fail [watch_id]",
	Short: "Manually mark a pending watch as failed",
	Args:  cobra.ExactArgs(1),
	Run:   runFail,
}

func init() {
	createCmd.Flags().DurationVar(&watchTTL, "ttl", 0, "watch lifetime (default from config)")
	failCmd.Flags().StringVar(&failReason, "reason", "failed by operator", "reason recorded in the audit log")
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(failCmd)
}

func openService(ctx context.Context) (*service.Service, func()) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	svc := service.NewService(postgres.NewWatchRepo(db), postgres.NewEventRepo(db), cfg.Monitor.WatchTTL)
	return svc, func() { _ = db.Close() }
}

func runCreate(cmd *cobra.Command, args []string) {
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		fmt.Printf("Invalid amount: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	svc, closeFn := openService(ctx)
	defer closeFn()

	w, err := svc.CreateWatch(ctx, service.CreateWatchRequest{
		Address:        args[0],
		ExpectedAmount: amount,
		OrderID:        args[2],
		CallbackURL:    args[3],
		TTL:            watchTTL,
	})
	if err != nil {
		slog.Error("Failed to create watch", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Created watch %s (expires %s)\n", w.ID, w.ExpiresAt.Format(time.RFC3339))
}

func runFail(cmd *cobra.Command, args []string) {
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

	mgr := watch.NewManager(postgres.NewWatchRepo(db), postgres.NewEventRepo(db))
	failed, err := mgr.TryFail(ctx, args[0], failReason)
	if err != nil {
		slog.Error("Failed to fail watch", "error", err)
		os.Exit(1)
	}
	if !failed {
		fmt.Println("Watch is not pending; nothing changed")
		return
	}
	fmt.Printf("Watch %s marked failed\n", args[0])
}

func runGet(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	svc, closeFn := openService(ctx)
	defer closeFn()

	w, err := svc.GetWatch(ctx, args[0])
	if err != nil {
		slog.Error("Failed to get watch", "error", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(map[string]any{
		"id":              w.ID,
		"order_id":        w.OrderID,
		"address":         w.Address,
		"expected_amount": w.ExpectedAmount.String(),
		"status":          w.Status,
		"tx_hash":         w.TxHash,
		"received_amount": w.ReceivedAmount.String(),
		"expires_at":      w.ExpiresAt,
		"completed_at":    w.CompletedAt,
	}, "", "  ")
	fmt.Println(string(out))

	events, err := svc.ListEvents(ctx, w.ID)
	if err != nil {
		slog.Error("Failed to list events", "error", err)
		os.Exit(1)
	}
	for _, ev := range events {
		fmt.Printf("%s  %-20s %s\n", ev.CreatedAt.Format(time.RFC3339), ev.Type, ev.Message)
	}
}
