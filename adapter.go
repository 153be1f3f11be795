package geyserplugin

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/gagliardetto/solana-go"

	"github.com/streamingfast/firehose-geyser-plugin/internal/codec"
	"github.com/streamingfast/firehose-geyser-plugin/internal/state"
	"github.com/streamingfast/firehose-geyser-plugin/pkg/geyser"
)

// voteProgram owns every vote account; writes it owns are noise for
// downstream consumers and are dropped before hashing.
var voteProgram = solana.VoteProgramID

// isVoteAccount reports whether owner is the vote program.
func isVoteAccount(owner []byte) bool {
	return bytes.Equal(owner, voteProgram[:])
}

// dataHash fingerprints account data for the cross-slot redundancy table.
// Empty data hashes to zero.
func dataHash(data []byte) uint64 {
	if len(data) == 0 {
		return 0
	}

	return xxhash.Sum64(data)
}

// normalizeAccount maps any supported account replica version onto the
// buffered write shape. A deleted account is one drained to zero lamports.
func normalizeAccount(account geyser.ReplicaAccountInfoVersions) (*codec.AccountWrite, error) {
	var (
		pubkey, owner, data []byte
		lamports            uint64
		writeVersion        uint64
	)

	switch {
	case account.V1 != nil:
		pubkey, owner, data = account.V1.Pubkey, account.V1.Owner, account.V1.Data
		lamports, writeVersion = account.V1.Lamports, account.V1.WriteVersion
	case account.V2 != nil:
		pubkey, owner, data = account.V2.Pubkey, account.V2.Owner, account.V2.Data
		lamports, writeVersion = account.V2.Lamports, account.V2.WriteVersion
	case account.V3 != nil:
		pubkey, owner, data = account.V3.Pubkey, account.V3.Owner, account.V3.Data
		lamports, writeVersion = account.V3.Lamports, account.V3.WriteVersion
	default:
		return nil, fmt.Errorf("account notification: %w", ErrUnsupportedABIVersion)
	}

	return &codec.AccountWrite{
		Address:      solana.PublicKeyFromBytes(pubkey),
		Owner:        solana.PublicKeyFromBytes(owner),
		Data:         data,
		WriteVersion: writeVersion,
		Deleted:      lamports == 0,
	}, nil
}

// normalizeTransaction canonicalizes any supported transaction replica
// version. V1 carries no within-slot index; it defaults to zero and the
// stable artifact sort preserves arrival order.
func normalizeTransaction(trx geyser.ReplicaTransactionInfoVersions) (*state.TransactionRecord, error) {
	var (
		transaction *solana.Transaction
		meta        *geyser.TransactionStatusMeta
		index       uint64
	)

	switch {
	case trx.V1 != nil:
		transaction, meta = trx.V1.Transaction, trx.V1.Meta
	case trx.V2 != nil:
		transaction, meta = trx.V2.Transaction, trx.V2.Meta
		index = trx.V2.Index
	default:
		return nil, fmt.Errorf("transaction notification: %w", ErrUnsupportedABIVersion)
	}

	confirmed := &codec.ConfirmedTransaction{
		Index: index,
		Meta:  convertMeta(meta),
	}
	if transaction != nil {
		confirmed.Transaction = codec.FromSolanaTransaction(transaction)
	}

	return &state.TransactionRecord{Index: index, Transaction: confirmed}, nil
}

func convertMeta(meta *geyser.TransactionStatusMeta) *codec.TransactionStatusMeta {
	if meta == nil {
		return nil
	}

	out := &codec.TransactionStatusMeta{
		Fee:                     meta.Fee,
		PreBalances:             meta.PreBalances,
		PostBalances:            meta.PostBalances,
		LogMessages:             meta.LogMessages,
		LoadedWritableAddresses: meta.LoadedWritableAddresses,
		LoadedReadonlyAddresses: meta.LoadedReadonlyAddresses,
	}
	if meta.Err != nil {
		out.Err = &codec.TransactionError{Err: *meta.Err}
	}

	return out
}

// normalizeBlockMeta maps any supported block metadata version onto the
// internal shape. V1 predates parent linkage: the parent defaults to the
// previous slot with an unknown hash. An absent block time is zero.
func normalizeBlockMeta(meta geyser.ReplicaBlockInfoVersions) (*codec.BlockInfo, error) {
	switch {
	case meta.V1 != nil:
		m := meta.V1
		info := &codec.BlockInfo{
			Slot:       m.Slot,
			Hash:       m.Blockhash,
			ParentHash: "",
			Height:     m.BlockHeight,
			Rewards:    convertRewards(m.Rewards),
		}
		if m.Slot > 0 {
			info.ParentSlot = m.Slot - 1
		}
		if m.BlockTime != nil {
			info.Timestamp = *m.BlockTime
		}

		return info, nil
	case meta.V2 != nil:
		m := meta.V2
		return blockInfoFrom(m.Slot, m.Blockhash, m.ParentSlot, m.ParentBlockhash,
			m.Rewards, m.BlockTime, m.BlockHeight, m.ExecutedTransactionCount), nil
	case meta.V3 != nil:
		m := meta.V3
		return blockInfoFrom(m.Slot, m.Blockhash, m.ParentSlot, m.ParentBlockhash,
			m.Rewards, m.BlockTime, m.BlockHeight, m.ExecutedTransactionCount), nil
	case meta.V4 != nil:
		m := meta.V4
		return blockInfoFrom(m.Slot, m.Blockhash, m.ParentSlot, m.ParentBlockhash,
			m.Rewards, m.BlockTime, m.BlockHeight, m.ExecutedTransactionCount), nil
	default:
		return nil, fmt.Errorf("block metadata notification: %w", ErrUnsupportedABIVersion)
	}
}

func blockInfoFrom(slot uint64, hash string, parentSlot uint64, parentHash string,
	rewards []geyser.Reward, blockTime *int64, height *uint64, txCount uint64,
) *codec.BlockInfo {
	info := &codec.BlockInfo{
		Slot:             slot,
		ParentSlot:       parentSlot,
		Hash:             hash,
		ParentHash:       parentHash,
		Height:           height,
		TransactionCount: txCount,
		Rewards:          convertRewards(rewards),
	}
	if blockTime != nil {
		info.Timestamp = *blockTime
	}

	return info
}

func convertRewards(rewards []geyser.Reward) []*codec.Reward {
	if len(rewards) == 0 {
		return nil
	}

	out := make([]*codec.Reward, 0, len(rewards))
	for _, r := range rewards {
		reward := &codec.Reward{
			Pubkey:      r.Pubkey,
			Lamports:    r.Lamports,
			PostBalance: r.PostBalance,
			Kind:        codec.RewardKind(r.RewardType),
		}
		if r.Commission != nil {
			reward.Commission = fmt.Sprintf("%d", *r.Commission)
		}

		out = append(out, reward)
	}

	return out
}
