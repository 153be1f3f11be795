package state

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/streamingfast/firehose-geyser-plugin/internal/codec"
)

// fakeChain serves canned RPC answers.
type fakeChain struct {
	finalized      uint64
	finalizedErr   error
	finalizedCalls int

	blocks   map[uint64]*codec.BlockInfo
	blockErr error
}

func (c *fakeChain) FinalizedSlot(_ context.Context) (uint64, error) {
	c.finalizedCalls++

	if c.finalizedErr != nil {
		return 0, c.finalizedErr
	}

	return c.finalized, nil
}

func (c *fakeChain) BlockInfo(_ context.Context, slot uint64) (*codec.BlockInfo, error) {
	if c.blockErr != nil {
		return nil, c.blockErr
	}

	info, ok := c.blocks[slot]
	if !ok {
		return nil, fmt.Errorf("fake chain has no block %d", slot)
	}

	return info, nil
}

type emission struct {
	slot         uint64
	lib          uint64
	block        *codec.Block
	accountBlock *codec.AccountBlock
}

// fakeSink records emissions in order.
type fakeSink struct {
	emissions []emission
	printErr  error
	poisonErr error
}

func (s *fakeSink) Print(info *codec.BlockInfo, lib uint64, block *codec.Block, accountBlock *codec.AccountBlock) error {
	if s.printErr != nil {
		return s.printErr
	}

	s.emissions = append(s.emissions, emission{
		slot:         info.Slot,
		lib:          lib,
		block:        block,
		accountBlock: accountBlock,
	})

	return nil
}

func (s *fakeSink) Err() error { return s.poisonErr }

func (s *fakeSink) slots() []uint64 {
	out := make([]uint64, 0, len(s.emissions))
	for _, e := range s.emissions {
		out = append(out, e.slot)
	}

	return out
}

func newTestState(t *testing.T, cursor *uint64, chain *fakeChain, sink *fakeSink) (*State, *logtest.Hook) {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	s := New(Options{
		Cursor:  cursor,
		Chain:   chain,
		Printer: sink,
		Log:     logger.WithField("component", "state"),
	})

	return s, hook
}

func blockInfo(slot, parent, txCount uint64) *codec.BlockInfo {
	return &codec.BlockInfo{
		Slot:             slot,
		ParentSlot:       parent,
		Hash:             fmt.Sprintf("hash-%d", slot),
		ParentHash:       fmt.Sprintf("hash-%d", parent),
		Timestamp:        1700000000 + int64(slot),
		TransactionCount: txCount,
	}
}

func key(b byte) solana.PublicKey {
	var k solana.PublicKey
	k[0] = b

	return k
}

func write(k solana.PublicKey, data []byte, writeVersion uint64) *codec.AccountWrite {
	return &codec.AccountWrite{
		Address:      k,
		Owner:        key(0xEE),
		Data:         data,
		WriteVersion: writeVersion,
	}
}

func uptr(v uint64) *uint64 { return &v }

func TestProcessUpTo_HappyPath(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	s, _ := newTestState(t, nil, &fakeChain{}, sink)

	s.SetLib(100)
	s.SetBlockInfo(blockInfo(101, 100, 0))
	s.SetConfirmedSlot(101)
	require.NoError(t, s.ProcessUpTo(101))

	require.Len(t, sink.emissions, 1)
	require.Equal(t, uint64(101), sink.emissions[0].slot)
	require.Equal(t, uint64(100), sink.emissions[0].lib)
	require.Equal(t, uint64(101), sink.emissions[0].block.Slot)
	require.Equal(t, "hash-101", sink.emissions[0].block.Blockhash)
	require.Empty(t, sink.emissions[0].accountBlock.Accounts)
}

func TestProcessUpTo_GatedUntilLibKnown(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	chain := &fakeChain{finalizedErr: errors.New("rpc down")}
	s, _ := newTestState(t, nil, chain, sink)

	// The LIB bootstrap fails, so processing must stay gated.
	s.SetBlockInfo(blockInfo(101, 100, 0))
	s.SetConfirmedSlot(101)
	require.NoError(t, s.ProcessUpTo(101))
	require.Empty(t, sink.emissions)
	require.Equal(t, 1, chain.finalizedCalls)

	// A rooted notification unblocks it.
	s.SetLib(100)
	require.NoError(t, s.ProcessUpTo(101))
	require.Equal(t, []uint64{101}, sink.slots())
}

func TestProcessUpTo_LibBootstrapFromRPC(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	chain := &fakeChain{finalized: 100}
	s, _ := newTestState(t, nil, chain, sink)

	s.SetBlockInfo(blockInfo(101, 100, 0))
	s.SetConfirmedSlot(101)
	require.NoError(t, s.ProcessUpTo(101))

	require.Equal(t, []uint64{101}, sink.slots())
	require.Equal(t, uint64(100), sink.emissions[0].lib)
	require.Equal(t, 1, chain.finalizedCalls)
}

func TestProcessUpTo_WaitsForBlockInfo(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	s, _ := newTestState(t, nil, &fakeChain{}, sink)

	s.SetLib(100)
	s.SetBlockInfo(blockInfo(101, 100, 0))
	s.SetConfirmedSlot(101)
	s.SetConfirmedSlot(102)
	require.NoError(t, s.ProcessUpTo(102))

	// 101 emits, 102 has no metadata yet and blocks the frontier.
	require.Equal(t, []uint64{101}, sink.slots())

	s.SetBlockInfo(blockInfo(102, 101, 0))
	require.NoError(t, s.ProcessUpTo(102))
	require.Equal(t, []uint64{101, 102}, sink.slots())
}

func TestProcessUpTo_WaitsForTransactions(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	s, _ := newTestState(t, nil, &fakeChain{}, sink)

	s.SetLib(100)
	s.SetBlockInfo(blockInfo(101, 100, 2))
	s.SetConfirmedSlot(101)
	s.SetTransaction(101, &TransactionRecord{Index: 1, Transaction: &codec.ConfirmedTransaction{}})
	require.NoError(t, s.ProcessUpTo(101))
	require.Empty(t, sink.emissions)

	s.SetTransaction(101, &TransactionRecord{Index: 0, Transaction: &codec.ConfirmedTransaction{}})
	require.NoError(t, s.ProcessUpTo(101))

	require.Len(t, sink.emissions, 1)
	trxs := sink.emissions[0].block.Transactions
	require.Len(t, trxs, 2)
	require.Equal(t, uint64(0), trxs[0].Index)
	require.Equal(t, uint64(1), trxs[1].Index)
}

func TestProcessUpTo_EmissionOrderIsAscending(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	s, _ := newTestState(t, nil, &fakeChain{}, sink)

	s.SetLib(100)
	s.SetBlockInfo(blockInfo(101, 100, 0))
	s.SetBlockInfo(blockInfo(102, 101, 0))
	s.SetBlockInfo(blockInfo(103, 102, 0))

	// Confirmations arrive out of order.
	s.SetConfirmedSlot(103)
	s.SetConfirmedSlot(101)
	s.SetConfirmedSlot(102)
	require.NoError(t, s.ProcessUpTo(103))

	require.Equal(t, []uint64{101, 102, 103}, sink.slots())
}

func TestProcessUpTo_EmissionFailureSurfaces(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{printErr: errors.New("pipe broke")}
	s, _ := newTestState(t, nil, &fakeChain{}, sink)

	s.SetLib(100)
	s.SetBlockInfo(blockInfo(101, 100, 0))
	s.SetConfirmedSlot(101)

	err := s.ProcessUpTo(101)
	require.Error(t, err)
	require.Contains(t, err.Error(), "pipe broke")
}

func TestProcessUpTo_PoisonedPrinterSurfaces(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{poisonErr: errors.New("poisoned")}
	s, _ := newTestState(t, nil, &fakeChain{}, sink)

	s.SetLib(100)
	s.SetBlockInfo(blockInfo(101, 100, 0))
	require.Error(t, s.ProcessUpTo(101))
}

func TestSetAccount_WriteVersionOrdering(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	s, _ := newTestState(t, nil, &fakeChain{}, sink)

	k := key(0x01)
	s.SetLib(100)
	s.SetBlockInfo(blockInfo(101, 100, 0))

	s.SetAccount(101, write(k, []byte("D1"), 7), false, 71)
	s.SetAccount(101, write(k, []byte("D2"), 5), false, 52)

	s.SetConfirmedSlot(101)
	require.NoError(t, s.ProcessUpTo(101))

	require.Len(t, sink.emissions, 1)
	accounts := sink.emissions[0].accountBlock.Accounts
	require.Len(t, accounts, 1)
	require.Equal(t, []byte("D1"), accounts[0].Data)
}

func TestSetAccount_DataHashDedupAcrossSlots(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	s, _ := newTestState(t, nil, &fakeChain{}, sink)

	k := key(0x02)
	data := []byte{0xAA, 0xAA, 0xAA, 0xAA}

	s.SetLib(100)
	s.SetBlockInfo(blockInfo(101, 100, 0))
	s.SetBlockInfo(blockInfo(102, 101, 0))

	s.SetAccount(101, write(k, data, 1), false, 42)
	s.SetConfirmedSlot(101)
	require.NoError(t, s.ProcessUpTo(101))

	// Identical data at the next slot is a redundant rewrite.
	s.SetAccount(102, write(k, data, 1), false, 42)
	s.SetConfirmedSlot(102)
	require.NoError(t, s.ProcessUpTo(102))

	require.Len(t, sink.emissions, 2)
	require.Len(t, sink.emissions[0].accountBlock.Accounts, 1)
	require.Empty(t, sink.emissions[1].accountBlock.Accounts)
}

func TestSetAccount_DeletedWriteBypassesDedup(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	s, _ := newTestState(t, nil, &fakeChain{}, sink)

	k := key(0x03)
	s.SetLib(100)
	s.SetBlockInfo(blockInfo(101, 100, 0))
	s.SetBlockInfo(blockInfo(102, 101, 0))

	s.SetAccount(101, write(k, nil, 1), false, 0)
	s.SetConfirmedSlot(101)
	require.NoError(t, s.ProcessUpTo(101))

	deleted := write(k, nil, 2)
	deleted.Deleted = true
	s.SetAccount(102, deleted, false, 0)
	s.SetConfirmedSlot(102)
	require.NoError(t, s.ProcessUpTo(102))

	require.Len(t, sink.emissions, 2)
	require.Len(t, sink.emissions[1].accountBlock.Accounts, 1)
	require.True(t, sink.emissions[1].accountBlock.Accounts[0].Deleted)
}

func TestSetAccount_StartupWritesTeachHashTableOnly(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	s, _ := newTestState(t, nil, &fakeChain{}, sink)

	k := key(0x04)
	data := []byte("snapshot-data")

	s.SetAccount(90, write(k, data, 1), true, 77)
	require.Equal(t, 1, s.HashCount())
	require.Zero(t, s.Snapshot().BufferedSlots)

	s.SetLib(100)
	s.SetBlockInfo(blockInfo(101, 100, 0))

	// The live rewrite of the snapshot data is redundant.
	s.SetAccount(101, write(k, data, 1), false, 77)
	s.SetConfirmedSlot(101)
	require.NoError(t, s.ProcessUpTo(101))

	require.Len(t, sink.emissions, 1)
	require.Empty(t, sink.emissions[0].accountBlock.Accounts)
}

func TestSetAccount_MemoryGuardDuringCatchup(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	s, _ := newTestState(t, nil, &fakeChain{}, sink)

	// No cursor, no metadata: hundreds of catchup slots must not pile up.
	for slot := uint64(1); slot <= 500; slot++ {
		s.SetAccount(slot, write(key(byte(slot%251)), []byte{byte(slot)}, slot), false, slot)
	}

	require.LessOrEqual(t, s.Snapshot().BufferedSlots, catchupPurgeDistance+1)
}

func TestSetTransaction_AfterEmissionIsLogicError(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	s, hook := newTestState(t, nil, &fakeChain{}, sink)

	s.SetLib(100)
	s.SetBlockInfo(blockInfo(101, 100, 0))
	s.SetConfirmedSlot(101)
	require.NoError(t, s.ProcessUpTo(101))
	require.Len(t, sink.emissions, 1)

	hook.Reset()
	s.SetTransaction(101, &TransactionRecord{Index: 0, Transaction: &codec.ConfirmedTransaction{}})

	require.NotNil(t, hook.LastEntry())
	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	require.Zero(t, s.Snapshot().BufferedTxSlots)
}

func TestRestart_SkipsSlotsAtOrBelowCursor(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	chain := &fakeChain{finalized: 40}
	s, _ := newTestState(t, uptr(50), chain, sink)

	// Everything at or below the cursor is cold-start noise.
	s.SetAccount(49, write(key(0x05), []byte("old"), 1), false, 9)
	s.SetTransaction(50, &TransactionRecord{Index: 0, Transaction: &codec.ConfirmedTransaction{}})
	s.SetConfirmedSlot(50)

	snapshot := s.Snapshot()
	require.Zero(t, snapshot.BufferedSlots)
	require.Zero(t, snapshot.BufferedTxSlots)
	require.Zero(t, snapshot.ConfirmedSlots)

	// The first confirmed slot past the cursor anchors the frontier.
	s.SetBlockInfo(blockInfo(51, 50, 0))
	s.SetConfirmedSlot(51)
	require.NoError(t, s.ProcessUpTo(51))
	require.Equal(t, []uint64{51}, sink.slots())
}

func TestRestart_StaleCursorClearedByLib(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	chain := &fakeChain{finalized: 180}
	s, _ := newTestState(t, uptr(50), chain, sink)

	// First metadata triggers the LIB bootstrap; 180 > 50 invalidates the
	// cursor and the frontier snaps to the first received metadata.
	s.SetBlockInfo(blockInfo(200, 199, 0))
	s.SetConfirmedSlot(200)
	require.NoError(t, s.ProcessUpTo(200))

	require.Equal(t, []uint64{200}, sink.slots())
	require.Equal(t, uint64(180), sink.emissions[0].lib)
}

func TestRestart_CursorAheadOfLibSurvives(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	chain := &fakeChain{finalized: 180}
	s, _ := newTestState(t, uptr(300), chain, sink)

	s.SetBlockInfo(blockInfo(290, 289, 0))
	s.SetConfirmedSlot(290)
	require.NoError(t, s.ProcessUpTo(290))
	require.Empty(t, sink.emissions)

	s.SetBlockInfo(blockInfo(301, 300, 0))
	s.SetConfirmedSlot(301)
	require.NoError(t, s.ProcessUpTo(301))
	require.Equal(t, []uint64{301}, sink.slots())
}

func TestAddMissingToConfirmed_FillsForkGap(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	s, _ := newTestState(t, nil, &fakeChain{}, sink)

	// Chain 1 ← 2 ← 4 ← 6; slots 3 and 5 were skipped.
	s.SetLib(1)
	s.SetBlockInfo(blockInfo(1, 0, 0))
	s.SetBlockInfo(blockInfo(2, 1, 0))
	s.SetBlockInfo(&codec.BlockInfo{Slot: 4, ParentSlot: 2, Hash: "hash-4", ParentHash: "hash-2"})
	s.SetBlockInfo(&codec.BlockInfo{Slot: 6, ParentSlot: 4, Hash: "hash-6", ParentHash: "hash-4"})

	s.SetConfirmedSlot(1)
	require.NoError(t, s.ProcessUpTo(1))
	require.Equal(t, []uint64{1}, sink.slots())

	// Only 6 is notified confirmed; the gap walk must pull in 2 and 4.
	s.SetConfirmedSlot(6)
	require.NoError(t, s.ProcessUpTo(6))
	require.NoError(t, s.ProcessUpTo(6))

	require.Equal(t, []uint64{1, 2, 4, 6}, sink.slots())
}

func TestAddMissingToConfirmed_FetchesMissingMetadata(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	chain := &fakeChain{blocks: map[uint64]*codec.BlockInfo{
		4: {Slot: 4, ParentSlot: 2, Hash: "hash-4", ParentHash: "hash-2"},
	}}
	s, _ := newTestState(t, nil, chain, sink)

	s.SetLib(1)
	s.SetBlockInfo(blockInfo(1, 0, 0))
	s.SetBlockInfo(blockInfo(2, 1, 0))
	// Metadata for 4 never arrives from the host.
	s.SetBlockInfo(&codec.BlockInfo{Slot: 6, ParentSlot: 4, Hash: "hash-6", ParentHash: "hash-4"})

	s.SetConfirmedSlot(1)
	require.NoError(t, s.ProcessUpTo(1))

	s.SetConfirmedSlot(6)
	require.NoError(t, s.ProcessUpTo(6))
	require.NoError(t, s.ProcessUpTo(6))

	require.Equal(t, []uint64{1, 2, 4, 6}, sink.slots())
}

func TestAddMissingToConfirmed_RPCFailureRetriesNextRound(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	chain := &fakeChain{blockErr: errors.New("rpc down")}
	s, _ := newTestState(t, nil, chain, sink)

	s.SetLib(1)
	s.SetBlockInfo(blockInfo(1, 0, 0))
	s.SetBlockInfo(&codec.BlockInfo{Slot: 6, ParentSlot: 4, Hash: "hash-6", ParentHash: "hash-4"})

	s.SetConfirmedSlot(1)
	require.NoError(t, s.ProcessUpTo(1))

	s.SetConfirmedSlot(6)
	require.NoError(t, s.ProcessUpTo(6))
	require.Equal(t, []uint64{1}, sink.slots())

	// RPC recovers; the walk completes on the next rounds.
	chain.blockErr = nil
	chain.blocks = map[uint64]*codec.BlockInfo{
		2: {Slot: 2, ParentSlot: 1, Hash: "hash-2", ParentHash: "hash-1"},
		4: {Slot: 4, ParentSlot: 2, Hash: "hash-4", ParentHash: "hash-2"},
	}

	require.NoError(t, s.ProcessUpTo(6))
	require.NoError(t, s.ProcessUpTo(6))
	require.Equal(t, []uint64{1, 2, 4, 6}, sink.slots())
}

func TestProcessUpTo_PurgesBuffersAfterEmit(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	s, _ := newTestState(t, nil, &fakeChain{}, sink)

	s.SetLib(100)
	s.SetBlockInfo(blockInfo(101, 100, 1))
	s.SetAccount(101, write(key(0x07), []byte("x"), 1), false, 5)
	s.SetTransaction(101, &TransactionRecord{Index: 0, Transaction: &codec.ConfirmedTransaction{}})
	s.SetConfirmedSlot(101)
	require.NoError(t, s.ProcessUpTo(101))

	snapshot := s.Snapshot()
	require.Zero(t, snapshot.BufferedSlots)
	require.Zero(t, snapshot.BufferedTxSlots)
	require.Zero(t, snapshot.BlockInfos)
	require.Zero(t, snapshot.ConfirmedSlots)
	require.Equal(t, uint64(101), snapshot.LastSentBlock)
	require.True(t, snapshot.Initialized)

	// The hash table survives emission; it spans the process lifetime.
	require.Equal(t, 1, snapshot.HashTableEntries)
}
