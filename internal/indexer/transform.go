package indexer

import (
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"jobevents/internal/chain"
	"jobevents/internal/model"
)

// buildRecords decodes logs into records, skipping duplicates and logs that are not
// well-formed JobEvents.
func (r *Runner) buildRecords(logs []types.Log, ingestedAt time.Time) ([]model.RawEventRecord, int) {
	records := make([]model.RawEventRecord, 0, len(logs))
	skipped := 0
	for _, log := range logs {
		if r.isDuplicate(log) {
			continue
		}
		record, err := chain.DecodeLog(log, ingestedAt)
		if err != nil {
			skipped++
			r.logger.Warn("skip undecodable log",
				zap.Error(err),
				zap.Uint64("block_number", log.BlockNumber),
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
			)
			continue
		}
		records = append(records, record)
	}
	return records, skipped
}
