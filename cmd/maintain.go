package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ve-ledger/logger"
)

func init() {
	cmdMain.AddCommand(cmdMaintain)

	cmdMaintain.Flags().StringVar(&flagMaintain.Caller, "caller", "operator", "Payer of any storage the catch-up creates")
	cmdMaintain.Flags().Uint64Var(&flagMaintain.Now, "now", 0, "Catch up to this unix time instead of the wall clock")
}

var cmdMaintain = &cobra.Command{
	Use:   "maintain",
	Short: "Append every missing week boundary to the total power ledger",
	Long:  "Runs catch-up in bounded steps until the total power ledger has a checkpoint for every elapsed week. The server must not be running against the same database.",
	Args:  cobra.NoArgs,
	Run:   maintain,
}

var flagMaintain = struct {
	Caller string
	Now    uint64
}{}

func maintain(*cobra.Command, []string) {
	n := openNode()
	defer n.ldb.Close()

	now := flagMaintain.Now
	if now == 0 {
		now = uint64(time.Now().Unix())
	}

	var total int
	for {
		crossed, err := n.ledger.Maintain(flagMaintain.Caller, now)
		checkf(err, "maintain")
		total += crossed
		if crossed == 0 {
			break
		}
	}
	logger.Logger.Info("Ledger caught up", zap.Int("boundaries_crossed", total), zap.Uint64("now", now))
	_ = logger.Logger.Sync()
}
