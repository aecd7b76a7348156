package ledger

import (
	"go.uber.org/zap"

	"ve-ledger/logger"
)

// Maintain appends the week boundary checkpoints the total power ledger is missing up to now,
// at most MaxBoundariesPerMaintain of them, and returns how many it appended. Storage for new
// pages is bonded by caller. A return of zero means the ledger is caught up; a return equal to
// the limit means the caller should call again.
func (l *Ledger) Maintain(caller string, now uint64) (int, error) {
	var crossed int
	err := l.update("maintain", caller, func(tx *txn) error {
		n, err := tx.crossBoundaries(now, tx.params.MaxBoundariesPerMaintain, true)
		crossed = n
		return err
	})
	if err != nil {
		return 0, err
	}
	if crossed > 0 {
		logger.Logger.Info("Crossed week boundaries",
			zap.Int("count", crossed), zap.String("caller", caller), zap.Uint64("now", now))
	}
	return crossed, nil
}
