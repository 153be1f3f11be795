// Package codec holds the data model shared across the plugin — block
// metadata, buffered account writes, canonicalized transactions — and the
// binary wire encoding of the two emitted artifacts, Block and AccountBlock.
//
// Artifacts are protobuf messages marshalled by hand with protowire. The
// field layout is fixed; downstream decoders depend on it:
//
//	Block                     AccountBlock
//	 1 previous_blockhash      1 slot
//	 2 blockhash               2 hash
//	 3 parent_slot             3 parent_hash
//	 4 transactions[]          4 parent_slot
//	 5 rewards[]               5 timestamp {1 seconds}
//	 6 block_time {1 seconds}  6 accounts[] {1 address, 2 data,
//	 7 block_height {1 height}               3 owner, 4 deleted}
//	 8 slot
//
// Transactions nest as ConfirmedTransaction {1 transaction, 2 meta} with
// the message/meta sub-layouts documented on their marshal methods.
package codec

import "github.com/gagliardetto/solana-go"

// BlockInfo is the per-slot metadata delivered by the host (or fetched from
// RPC during backfill). Timestamp is seconds since epoch, zero when the
// host did not report a block time.
type BlockInfo struct {
	Slot             uint64
	ParentSlot       uint64
	Hash             string
	ParentHash       string
	Timestamp        int64
	Height           *uint64
	TransactionCount uint64
	Rewards          []*Reward
}

// AccountWrite is one observed change to an account at some slot. Deleted
// is derived from the account reaching zero lamports. WriteVersion orders
// competing writes within a slot and is not exported to artifacts.
type AccountWrite struct {
	Address      solana.PublicKey
	Owner        solana.PublicKey
	Data         []byte
	WriteVersion uint64
	Deleted      bool
}

// RewardKind classifies a block reward entry.
type RewardKind int32

const (
	RewardKindUnspecified RewardKind = iota
	RewardKindFee
	RewardKindRent
	RewardKindStaking
	RewardKindVoting
)

// Reward is one entry of a block's reward list.
type Reward struct {
	Pubkey      string
	Lamports    int64
	PostBalance uint64
	Kind        RewardKind
	// Commission is the validator commission in percent, rendered as a
	// decimal string. "0" encodes as the empty string on the wire.
	Commission string
}

// TransactionError is the failure recorded for a transaction, absent on
// success.
type TransactionError struct {
	Err string
}

// TransactionStatusMeta is the execution result attached to a confirmed
// transaction. Loaded addresses come from address lookup tables and are
// carried here only, never in the static message account keys.
type TransactionStatusMeta struct {
	Err                     *TransactionError
	Fee                     uint64
	PreBalances             []uint64
	PostBalances            []uint64
	LogMessages             []string
	LoadedWritableAddresses []solana.PublicKey
	LoadedReadonlyAddresses []solana.PublicKey
}

// MessageHeader mirrors the sanitized message header.
type MessageHeader struct {
	NumRequiredSignatures       uint32
	NumReadonlySignedAccounts   uint32
	NumReadonlyUnsignedAccounts uint32
}

// CompiledInstruction is one instruction of a compiled message. Accounts
// holds indexes into the effective account key list, one byte each.
type CompiledInstruction struct {
	ProgramIDIndex uint32
	Accounts       []byte
	Data           []byte
}

// AddressTableLookup references an address lookup table used by a
// versioned message.
type AddressTableLookup struct {
	AccountKey      solana.PublicKey
	WritableIndexes []byte
	ReadonlyIndexes []byte
}

// Message is the canonicalized transaction message. AccountKeys holds only
// the statically declared keys.
type Message struct {
	Header             *MessageHeader
	AccountKeys        []solana.PublicKey
	RecentBlockhash    []byte
	Instructions       []*CompiledInstruction
	Versioned          bool
	AddressTableLookup []*AddressTableLookup
}

// Transaction is a canonicalized transaction: signatures plus message.
type Transaction struct {
	Signatures [][]byte
	Message    *Message
}

// ConfirmedTransaction pairs a transaction with its execution meta. Index
// is the transaction's position within its slot; it orders artifacts and is
// not serialized.
type ConfirmedTransaction struct {
	Index       uint64
	Transaction *Transaction
	Meta        *TransactionStatusMeta
}

// Block is the per-slot transaction artifact.
type Block struct {
	PreviousBlockhash string
	Blockhash         string
	ParentSlot        uint64
	Transactions      []*ConfirmedTransaction
	Rewards           []*Reward
	BlockTime         int64
	BlockHeight       *uint64
	Slot              uint64
}

// Account is one entry of an AccountBlock: the latest retained write for
// one address at the artifact's slot.
type Account struct {
	Address []byte
	Data    []byte
	Owner   []byte
	Deleted bool
}

// AccountBlock is the per-slot account artifact.
type AccountBlock struct {
	Slot       uint64
	Hash       string
	ParentHash string
	ParentSlot uint64
	Timestamp  int64
	Accounts   []*Account
}

// Fully qualified artifact type names, used by the emitter's init framing.
const (
	BlockTypeName        = "sf.solana.type.v1.Block"
	AccountBlockTypeName = "sf.solana.type.v1.AccountBlock"
)
