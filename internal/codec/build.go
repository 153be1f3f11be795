package codec

import (
	"bytes"
	"sort"

	"github.com/gagliardetto/solana-go"
)

// BuildBlock assembles the block artifact for one slot from its metadata
// and buffered transactions. Transactions are ordered by their within-slot
// index; the sort is stable so equal indexes keep arrival order.
func BuildBlock(info *BlockInfo, transactions []*ConfirmedTransaction) *Block {
	sorted := make([]*ConfirmedTransaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Index < sorted[j].Index
	})

	return &Block{
		PreviousBlockhash: info.ParentHash,
		Blockhash:         info.Hash,
		ParentSlot:        info.ParentSlot,
		Transactions:      sorted,
		Rewards:           info.Rewards,
		BlockTime:         info.Timestamp,
		BlockHeight:       info.Height,
		Slot:              info.Slot,
	}
}

// BuildAccountBlock assembles the account artifact for one slot from the
// retained writes. Accounts are ordered by address bytes. Write versions
// order the buffer and are not exported.
func BuildAccountBlock(info *BlockInfo, changes map[solana.PublicKey]*AccountWrite) *AccountBlock {
	accounts := make([]*Account, 0, len(changes))
	for _, w := range changes {
		addr := w.Address
		owner := w.Owner
		accounts = append(accounts, &Account{
			Address: addr[:],
			Data:    w.Data,
			Owner:   owner[:],
			Deleted: w.Deleted,
		})
	}
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].Address, accounts[j].Address) < 0
	})

	return &AccountBlock{
		Slot:       info.Slot,
		Hash:       info.Hash,
		ParentHash: info.ParentHash,
		ParentSlot: info.ParentSlot,
		Timestamp:  info.Timestamp,
		Accounts:   accounts,
	}
}

// FromSolanaTransaction canonicalizes a sanitized transaction into the
// artifact representation. Only statically declared account keys are
// carried in the message; addresses loaded through lookup tables belong to
// the status meta.
func FromSolanaTransaction(trx *solana.Transaction) *Transaction {
	msg := &trx.Message

	out := &Message{
		Header: &MessageHeader{
			NumRequiredSignatures:       uint32(msg.Header.NumRequiredSignatures),
			NumReadonlySignedAccounts:   uint32(msg.Header.NumReadonlySignedAccounts),
			NumReadonlyUnsignedAccounts: uint32(msg.Header.NumReadonlyUnsignedAccounts),
		},
		AccountKeys:     msg.AccountKeys,
		RecentBlockhash: msg.RecentBlockhash[:],
		Versioned:       msg.IsVersioned(),
	}

	for _, ins := range msg.Instructions {
		accounts := make([]byte, len(ins.Accounts))
		for i, idx := range ins.Accounts {
			accounts[i] = byte(idx)
		}
		out.Instructions = append(out.Instructions, &CompiledInstruction{
			ProgramIDIndex: uint32(ins.ProgramIDIndex),
			Accounts:       accounts,
			Data:           ins.Data,
		})
	}

	for _, lookup := range msg.AddressTableLookups {
		out.AddressTableLookup = append(out.AddressTableLookup, &AddressTableLookup{
			AccountKey:      lookup.AccountKey,
			WritableIndexes: lookup.WritableIndexes,
			ReadonlyIndexes: lookup.ReadonlyIndexes,
		})
	}

	signatures := make([][]byte, len(trx.Signatures))
	for i, sig := range trx.Signatures {
		s := sig
		signatures[i] = s[:]
	}

	return &Transaction{Signatures: signatures, Message: out}
}
