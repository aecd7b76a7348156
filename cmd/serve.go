package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"ve-ledger/handlers"
	"ve-ledger/logger"
	"ve-ledger/routers"
)

func init() {
	cmdMain.AddCommand(cmdServe)

	cmdServe.Flags().StringVar(&flagServe.Operator, "operator", "operator", "Payer of the storage created when the ledger is initialized")
	cmdServe.Flags().DurationVar(&flagServe.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "How long to wait for in-flight requests on shutdown")
}

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger HTTP server",
	Args:  cobra.NoArgs,
	Run:   serve,
}

var flagServe = struct {
	Operator        string
	ShutdownTimeout time.Duration
}{}

func serve(*cobra.Command, []string) {
	n := openNode()
	logger.Logger.Info("Starting ledger server...")

	ok, err := n.ledger.Initialized()
	checkf(err, "read ledger state")
	if !ok {
		_, err := n.ledger.Init(flagServe.Operator, uint64(time.Now().Unix()))
		checkf(err, "initialize ledger")
	}

	h := handlers.NewHandler(n.ledger)
	r := mux.NewRouter()
	routers.RegisterRoutes(r, h, n.registry)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", n.cfg.Port),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Error("Server stopped", zap.Error(err))
		}
	}()

	logger.Logger.Info("Server running on port", zap.Int("port", n.cfg.Port))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Logger.Info("Shutdown signal received, exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), flagServe.ShutdownTimeout)
	defer cancel()
	err = multierr.Combine(srv.Shutdown(ctx), n.ldb.Close())
	if err != nil {
		logger.Logger.Error("Unclean shutdown", zap.Error(err))
	}
	_ = logger.Logger.Sync()
}
