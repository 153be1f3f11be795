// Package state implements the reassembly and gating state machine.
//
// The host delivers account writes, transactions, block metadata and slot
// status transitions asynchronously and out of order. State buffers the
// per-slot fragments, decides when a confirmed slot is complete, emits it
// through the printer in strictly increasing order along the confirmed
// chain, and recovers from restarts using the durable cursor.
//
// The state machine progresses COLD (no metadata yet) → GATED (cursor or
// first metadata known, LIB not yet) → READY (LIB known, nothing emitted)
// → RUNNING (first block emitted). There is no teardown state.
//
// All mutation happens under one write lock; the host may call in from
// arbitrary goroutines. RPC lookups are rare (LIB bootstrap, fork-gap
// backfill) and run while holding the lock, which is acceptable at block
// cadence.
package state

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gagliardetto/solana-go"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/streamingfast/firehose-geyser-plugin/internal/codec"
	"github.com/streamingfast/firehose-geyser-plugin/internal/metrics"
)

// processedCapacity bounds the set of already-emitted slots kept around to
// detect late transactions. Insertions are ascending slots, so LRU eviction
// drops the oldest and the window stays comfortably past 100 slots.
const processedCapacity = 128

// catchupPurgeDistance caps buffered history while the validator replays
// hundreds of slots before the first block metadata or confirmed signal.
const catchupPurgeDistance = 32

// ChainReader resolves chain facts this process has not observed from the
// host: the finalized slot at startup and block metadata for slots the host
// confirmed past without notifying.
type ChainReader interface {
	// FinalizedSlot returns the most recent finalized slot.
	FinalizedSlot(ctx context.Context) (uint64, error)

	// BlockInfo fetches metadata for one slot.
	BlockInfo(ctx context.Context, slot uint64) (*codec.BlockInfo, error)
}

// BlockPrinter receives one slot's assembled artifacts. Implementations
// must not be called with decreasing slots.
type BlockPrinter interface {
	Print(info *codec.BlockInfo, lib uint64, block *codec.Block, accountBlock *codec.AccountBlock) error
	Err() error
}

// TransactionRecord is a canonicalized transaction buffered for its slot.
type TransactionRecord struct {
	Index       uint64
	Transaction *codec.ConfirmedTransaction
}

// Options configures a State.
type Options struct {
	// Cursor is the restart cursor read from the cursor file, nil on cold
	// start. Slots at or below it are skipped until initialization.
	Cursor *uint64

	Chain   ChainReader
	Printer BlockPrinter
	Log     *logrus.Entry
}

// State owns every buffer and gating predicate. See the package comment
// for the locking contract.
type State struct {
	mu sync.RWMutex

	log     *logrus.Entry
	chain   ChainReader
	printer BlockPrinter

	accountChanges map[uint64]map[solana.PublicKey]*codec.AccountWrite
	transactions   map[uint64][]*TransactionRecord
	blockInfos     map[uint64]*codec.BlockInfo
	confirmed      mapset.Set[uint64]
	processed      *lru.Cache

	// dataHashes maps each account to the hash of its last kept data,
	// suppressing redundant writes across slots. Lives for the process.
	dataHashes map[solana.PublicKey]uint64

	cursor                 *uint64
	lib                    *uint64
	firstBlockToProcess    *uint64
	firstReceivedBlockmeta *uint64
	lastSentBlock          *uint64
	initialized            bool
}

// New builds a State from opts.
func New(opts Options) *State {
	processed, _ := lru.New(processedCapacity)

	return &State{
		log:            opts.Log,
		chain:          opts.Chain,
		printer:        opts.Printer,
		accountChanges: make(map[uint64]map[solana.PublicKey]*codec.AccountWrite),
		transactions:   make(map[uint64][]*TransactionRecord),
		blockInfos:     make(map[uint64]*codec.BlockInfo),
		confirmed:      mapset.NewThreadUnsafeSet[uint64](),
		processed:      processed,
		dataHashes:     make(map[solana.PublicKey]uint64),
		cursor:         opts.Cursor,
	}
}

// skippable reports whether slot belongs to the cold-start region: before
// initialization, slots under the processing frontier or at/below the
// restart cursor carry nothing we will ever emit.
func (s *State) skippable(slot uint64) bool {
	if s.initialized {
		return false
	}

	if s.firstBlockToProcess != nil && slot < *s.firstBlockToProcess {
		return true
	}

	if s.cursor != nil && slot <= *s.cursor {
		return true
	}

	return false
}

// SetAccount records one account write at slot.
//
// Startup snapshot writes only teach the hash table. Live writes are
// dropped when an already-buffered write for the same key carries a higher
// write version, or when the data hash matches the account's last kept
// hash (redundant rewrite of unchanged data). The caller has already
// filtered vote-program accounts and computed dataHash (zero for empty
// data).
func (s *State) SetAccount(slot uint64, write *codec.AccountWrite, isStartup bool, dataHash uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if isStartup {
		s.dataHashes[write.Address] = dataHash
		return
	}

	if s.skippable(slot) {
		return
	}

	// Validator catchup can buffer account writes for hundreds of slots
	// before any metadata or confirmed signal arrives. Cap the history.
	if s.cursor == nil && s.firstBlockToProcess == nil && slot > catchupPurgeDistance {
		s.purgeBlocksUpTo(slot - catchupPurgeDistance)
	}

	changes, ok := s.accountChanges[slot]
	if !ok {
		changes = make(map[solana.PublicKey]*codec.AccountWrite)
		s.accountChanges[slot] = changes
	}

	if prev, ok := changes[write.Address]; ok && prev.WriteVersion > write.WriteVersion {
		metrics.AccountWritesDropped.WithLabelValues("stale_write_version").Inc()
		return
	}

	if !write.Deleted {
		if last, ok := s.dataHashes[write.Address]; ok && last == dataHash {
			metrics.AccountWritesDropped.WithLabelValues("unchanged_data").Inc()
			return
		}
	}

	changes[write.Address] = write
	s.dataHashes[write.Address] = dataHash
}

// SetTransaction buffers one transaction for its slot. A transaction for a
// slot that was already emitted is a logic error; it is logged and dropped.
func (s *State) SetTransaction(slot uint64, record *TransactionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.skippable(slot) {
		return
	}

	if s.processed.Contains(slot) {
		s.log.WithField("slot", slot).Error("transaction received for already emitted slot")
		return
	}

	s.transactions[slot] = append(s.transactions[slot], record)
}

// SetBlockInfo records the metadata of a replayed slot. The first metadata
// seen anchors the processing frontier on cold starts and triggers the LIB
// bootstrap from RPC.
func (s *State) SetBlockInfo(info *codec.BlockInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lib == nil {
		s.fetchLibFromRPC()
	}

	if s.firstReceivedBlockmeta == nil {
		slot := info.Slot
		s.firstReceivedBlockmeta = &slot

		if s.cursor == nil {
			s.firstBlockToProcess = &slot
			if slot > 0 {
				s.purgeBlocksUpTo(slot - 1)
			}
		}
	}

	s.blockInfos[info.Slot] = info
}

// SetConfirmedSlot marks slot confirmed. On restart, the first confirmed
// slot at or past the cursor becomes the processing frontier.
func (s *State) SetConfirmedSlot(slot uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.skippable(slot) {
		return
	}

	if s.cursor != nil && s.firstBlockToProcess == nil && slot >= *s.cursor {
		first := slot
		s.firstBlockToProcess = &first
		if slot > 0 {
			s.purgeBlocksUpTo(slot - 1)
		}
	}

	s.confirmed.Add(slot)
}

// SetLib records a rooted slot. The LIB never decreases through this path.
func (s *State) SetLib(slot uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lib == nil || slot > *s.lib {
		s.lib = &slot
	}
}

// fetchLibFromRPC asks the chain for the finalized slot, once per gap. A
// restart cursor older than the returned LIB is stale — the chain moved
// past it — so the cursor and frontier are cleared and rediscovered from
// live flow. Errors leave the LIB unset; processing stays gated and the
// fetch is retried on the next metadata arrival. Called with the write
// lock held.
func (s *State) fetchLibFromRPC() {
	slot, err := s.chain.FinalizedSlot(context.Background())
	if err != nil {
		metrics.RPCFailures.WithLabelValues("finalized_slot").Inc()
		s.log.WithError(err).Warn("cannot fetch finalized slot, processing stays gated")

		return
	}

	s.lib = &slot

	if s.cursor != nil && *s.cursor < slot {
		s.log.WithFields(logrus.Fields{
			"cursor": *s.cursor,
			"lib":    slot,
		}).Info("restart cursor is behind finalized chain, discarding it")

		s.cursor = nil
		s.firstBlockToProcess = nil

		// An earlier failed fetch may have let the first metadata through
		// already; anchor the frontier on it, as a cold start would.
		if s.firstReceivedBlockmeta != nil {
			first := *s.firstReceivedBlockmeta
			s.firstBlockToProcess = &first
			if first > 0 {
				s.purgeBlocksUpTo(first - 1)
			}
		}
	}
}

// purgeBlocksUpTo drops every buffer at or below upto. Callers hold the
// write lock.
func (s *State) purgeBlocksUpTo(upto uint64) {
	for slot := range s.accountChanges {
		if slot <= upto {
			delete(s.accountChanges, slot)
		}
	}

	for slot := range s.transactions {
		if slot <= upto {
			delete(s.transactions, slot)
		}
	}

	for slot := range s.blockInfos {
		if slot <= upto {
			delete(s.blockInfos, slot)
		}
	}

	for _, slot := range s.confirmed.ToSlice() {
		if slot <= upto {
			s.confirmed.Remove(slot)
		}
	}
}

// Stats is a point-in-time snapshot of buffer sizes, for logging and
// metrics.
type Stats struct {
	BufferedSlots    int
	BufferedTxSlots  int
	BlockInfos       int
	ConfirmedSlots   int
	HashTableEntries int
	LastSentBlock    uint64
	Initialized      bool
}

// Snapshot returns current buffer statistics.
func (s *State) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		BufferedSlots:    len(s.accountChanges),
		BufferedTxSlots:  len(s.transactions),
		BlockInfos:       len(s.blockInfos),
		ConfirmedSlots:   s.confirmed.Cardinality(),
		HashTableEntries: len(s.dataHashes),
		Initialized:      s.initialized,
	}
	if s.lastSentBlock != nil {
		stats.LastSentBlock = *s.lastSentBlock
	}

	return stats
}

// HashCount returns the data-hash table size. Used by the end-of-startup
// probe.
func (s *State) HashCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.dataHashes)
}
