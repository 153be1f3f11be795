package geyser

import (
	"github.com/gagliardetto/solana-go"
)

// ReplicaAccountInfoV1 is the oldest account notification payload.
type ReplicaAccountInfoV1 struct {
	Pubkey       []byte
	Owner        []byte
	Lamports     uint64
	Data         []byte
	Executable   bool
	RentEpoch    uint64
	WriteVersion uint64
}

// ReplicaAccountInfoV2 adds the signature of the transaction that caused
// the write, when one exists.
type ReplicaAccountInfoV2 struct {
	Pubkey       []byte
	Owner        []byte
	Lamports     uint64
	Data         []byte
	Executable   bool
	RentEpoch    uint64
	WriteVersion uint64
	TxnSignature *solana.Signature
}

// ReplicaAccountInfoV3 replaces the bare signature with a reference to the
// full causing transaction.
type ReplicaAccountInfoV3 struct {
	Pubkey       []byte
	Owner        []byte
	Lamports     uint64
	Data         []byte
	Executable   bool
	RentEpoch    uint64
	WriteVersion uint64
	Txn          *ReplicaTransactionInfoV2
}

// ReplicaAccountInfoVersions is the tagged variant delivered by
// Plugin.UpdateAccount. Exactly one field is non-nil.
type ReplicaAccountInfoVersions struct {
	V1 *ReplicaAccountInfoV1
	V2 *ReplicaAccountInfoV2
	V3 *ReplicaAccountInfoV3
}

// TransactionStatusMeta carries the execution result of a transaction.
// Addresses resolved through address lookup tables ride here; they are
// never duplicated into the static message account keys.
type TransactionStatusMeta struct {
	Err                     *string
	Fee                     uint64
	PreBalances             []uint64
	PostBalances            []uint64
	LogMessages             []string
	LoadedWritableAddresses []solana.PublicKey
	LoadedReadonlyAddresses []solana.PublicKey
}

// ReplicaTransactionInfoV1 is the oldest transaction notification payload.
type ReplicaTransactionInfoV1 struct {
	Signature   solana.Signature
	IsVote      bool
	Transaction *solana.Transaction
	Meta        *TransactionStatusMeta
}

// ReplicaTransactionInfoV2 adds the transaction's index within its slot.
type ReplicaTransactionInfoV2 struct {
	Signature   solana.Signature
	IsVote      bool
	Transaction *solana.Transaction
	Meta        *TransactionStatusMeta
	Index       uint64
}

// ReplicaTransactionInfoVersions is the tagged variant delivered by
// Plugin.NotifyTransaction. Exactly one field is non-nil.
type ReplicaTransactionInfoVersions struct {
	V1 *ReplicaTransactionInfoV1
	V2 *ReplicaTransactionInfoV2
}

// RewardType classifies a block reward.
type RewardType int32

const (
	RewardTypeUnspecified RewardType = iota
	RewardTypeFee
	RewardTypeRent
	RewardTypeStaking
	RewardTypeVoting
)

// Reward is one reward entry of a block's reward list.
type Reward struct {
	Pubkey      string
	Lamports    int64
	PostBalance uint64
	RewardType  RewardType
	Commission  *uint8
}

// ReplicaBlockInfoV1 is the oldest block metadata payload. It carries no
// parent linkage and no transaction count.
type ReplicaBlockInfoV1 struct {
	Slot        uint64
	Blockhash   string
	Rewards     []Reward
	BlockTime   *int64
	BlockHeight *uint64
}

// ReplicaBlockInfoV2 adds parent linkage and the executed transaction count.
type ReplicaBlockInfoV2 struct {
	Slot                     uint64
	Blockhash                string
	ParentSlot               uint64
	ParentBlockhash          string
	Rewards                  []Reward
	BlockTime                *int64
	BlockHeight              *uint64
	ExecutedTransactionCount uint64
}

// ReplicaBlockInfoV3 adds the entry count.
type ReplicaBlockInfoV3 struct {
	Slot                     uint64
	Blockhash                string
	ParentSlot               uint64
	ParentBlockhash          string
	Rewards                  []Reward
	BlockTime                *int64
	BlockHeight              *uint64
	ExecutedTransactionCount uint64
	EntryCount               uint64
}

// ReplicaBlockInfoV4 splits rewards into partitions on large blocks.
type ReplicaBlockInfoV4 struct {
	Slot                     uint64
	Blockhash                string
	ParentSlot               uint64
	ParentBlockhash          string
	Rewards                  []Reward
	NumPartitions            *uint64
	BlockTime                *int64
	BlockHeight              *uint64
	ExecutedTransactionCount uint64
	EntryCount               uint64
}

// ReplicaBlockInfoVersions is the tagged variant delivered by
// Plugin.NotifyBlockMetadata. Exactly one field is non-nil.
type ReplicaBlockInfoVersions struct {
	V1 *ReplicaBlockInfoV1
	V2 *ReplicaBlockInfoV2
	V3 *ReplicaBlockInfoV3
	V4 *ReplicaBlockInfoV4
}

// ReplicaEntryInfoV1 summarizes one ledger entry.
type ReplicaEntryInfoV1 struct {
	Slot                     uint64
	Index                    uint64
	NumHashes                uint64
	Hash                     []byte
	ExecutedTransactionCount uint64
}

// ReplicaEntryInfoVersions is the tagged variant delivered by
// Plugin.NotifyEntry.
type ReplicaEntryInfoVersions struct {
	V1 *ReplicaEntryInfoV1
}
