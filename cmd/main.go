package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"ve-ledger/config"
	"ve-ledger/db"
	"ve-ledger/ledger"
	"ve-ledger/logger"
	"ve-ledger/metrics"
	"ve-ledger/repository"
)

var cmdMain = &cobra.Command{
	Use:   "veledger",
	Short: "Vote-escrow voting power ledger",
	Run:   printUsageAndExit1,
}

var flagMain struct {
	Config string
}

func init() {
	cmdMain.PersistentFlags().StringVarP(&flagMain.Config, "config", "c", "", "Configuration file (default "+config.DefaultFile+")")
}

func main() {
	cmdMain.Execute()
}

func printUsageAndExit1(cmd *cobra.Command, args []string) {
	_ = cmd.Usage()
	os.Exit(1)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func checkf(err error, format string, otherArgs ...interface{}) {
	if err != nil {
		fatalf(format+": %v", append(otherArgs, err)...)
	}
}

// node is everything a command needs to work on the ledger.
type node struct {
	cfg      *config.Config
	ldb      *db.LevelDB
	registry *prometheus.Registry
	ledger   *ledger.Ledger
}

func openNode() *node {
	cfg, err := config.Load(flagMain.Config)
	checkf(err, "load config")
	checkf(logger.InitLogger(cfg.AppLogFile, cfg.LogLevel), "initialize logger")

	ldb, err := db.NewLevelDB(cfg.LevelDB)
	checkf(err, "open leveldb %s", cfg.LevelDB)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	repo := repository.NewRepository(ldb, cfg.Storage)
	return &node{
		cfg:      cfg,
		ldb:      ldb,
		registry: reg,
		ledger:   ledger.NewLedger(repo, cfg.Ledger, metrics.New(reg)),
	}
}
