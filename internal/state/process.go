package state

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/streamingfast/firehose-geyser-plugin/internal/codec"
	"github.com/streamingfast/firehose-geyser-plugin/internal/metrics"
)

var (
	errParentNotDecreasing = errors.New("parent slot does not decrease")
)

// ProcessUpTo drains confirmed slots at or below targetSlot, in ascending
// order, emitting every slot that is complete. It returns nil whenever
// progress is merely blocked (missing metadata, missing transactions,
// failed backfill) — the next host callback retries — and an error only
// when emission itself failed, which the caller must treat as fatal.
func (s *State) ProcessUpTo(targetSlot uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.firstBlockToProcess == nil || s.firstReceivedBlockmeta == nil || s.lib == nil {
		return nil
	}

	for _, slot := range s.orderedConfirmedUpTo(targetSlot) {
		if slot < *s.firstBlockToProcess {
			continue
		}

		info, ok := s.blockInfos[slot]
		if !ok {
			s.log.WithField("slot", slot).Debug("confirmed slot has no block metadata yet, waiting")
			return nil
		}

		// Forks can move the confirmed chain forward without notifying
		// the intermediate slots. A parent past the last sent block is
		// such a hole; enlarge the confirmed set and retraverse.
		if s.lastSentBlock != nil && info.ParentSlot > *s.lastSentBlock {
			if err := s.addMissingToConfirmed(*s.lastSentBlock, slot); err != nil {
				metrics.RPCFailures.WithLabelValues("backfill").Inc()
				s.log.WithError(err).WithFields(logrus.Fields{
					"from": *s.lastSentBlock,
					"to":   slot,
				}).Warn("cannot backfill confirmed chain, retrying on next callback")

				return nil
			}

			break
		}

		if count := uint64(len(s.transactions[slot])); count != info.TransactionCount {
			s.log.WithFields(logrus.Fields{
				"slot":     slot,
				"have":     count,
				"expected": info.TransactionCount,
			}).Debug("slot transactions incomplete, waiting")

			return nil
		}

		if err := s.emit(slot, info); err != nil {
			return err
		}
	}

	return s.printer.Err()
}

// emit assembles and prints one slot, then retires its buffers. Callers
// hold the write lock and have verified completeness.
func (s *State) emit(slot uint64, info *codec.BlockInfo) error {
	records := s.transactions[slot]
	transactions := make([]*codec.ConfirmedTransaction, 0, len(records))
	for _, rec := range records {
		trx := rec.Transaction
		trx.Index = rec.Index
		transactions = append(transactions, trx)
	}
	delete(s.transactions, slot)

	block := codec.BuildBlock(info, transactions)
	accountBlock := codec.BuildAccountBlock(info, s.accountChanges[slot])

	if err := s.printer.Print(info, *s.lib, block, accountBlock); err != nil {
		return fmt.Errorf("emit slot %d: %w", slot, err)
	}

	sent := slot
	s.lastSentBlock = &sent
	s.purgeBlocksUpTo(slot)
	s.processed.Add(slot, struct{}{})

	if !s.initialized && slot >= *s.firstReceivedBlockmeta {
		s.initialized = true
	}

	metrics.BlocksEmitted.Inc()
	metrics.LastSentSlot.Set(float64(slot))
	metrics.BufferedSlots.Set(float64(len(s.accountChanges)))
	s.log.WithFields(logrus.Fields{
		"slot":         slot,
		"parent_slot":  info.ParentSlot,
		"transactions": len(transactions),
	}).Debug("emitted block")

	return nil
}

// orderedConfirmedUpTo lists confirmed slots at or below upto, ascending.
func (s *State) orderedConfirmedUpTo(upto uint64) []uint64 {
	slots := make([]uint64, 0, s.confirmed.Cardinality())
	for _, slot := range s.confirmed.ToSlice() {
		if slot <= upto {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	return slots
}

// addMissingToConfirmed walks parent links backwards from `to` until
// reaching `from`, marking every walked ancestor confirmed. Metadata
// missing along the walk is fetched from RPC (local first, then remote —
// the ChainReader hides that fallback). Any failure aborts the whole round;
// the confirmed set keeps whatever was already added and the next
// ProcessUpTo retries. Callers hold the write lock.
func (s *State) addMissingToConfirmed(from, to uint64) error {
	cur := to
	for cur > from {
		info, ok := s.blockInfos[cur]
		if !ok {
			fetched, err := s.chain.BlockInfo(context.Background(), cur)
			if err != nil {
				return fmt.Errorf("fetch block info for slot %d: %w", cur, err)
			}

			s.blockInfos[cur] = fetched
			info = fetched
		}

		s.confirmed.Add(cur)

		if info.ParentSlot >= cur {
			return fmt.Errorf("slot %d parent %d: %w", cur, info.ParentSlot, errParentNotDecreasing)
		}

		cur = info.ParentSlot
	}

	return nil
}
