package codec

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Wire helpers. Zero values are omitted, matching proto3 presence rules;
// nested messages are emitted when non-nil, even if empty.

func appendUint64(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// appendPackedUint64 emits a packed repeated uint64 field.
func appendPackedUint64(b []byte, num protowire.Number, vs []uint64) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, v)
	}
	return appendMessage(b, num, packed)
}

// Marshal encodes the block artifact.
//
//	1 previous_blockhash  2 blockhash  3 parent_slot  4 transactions
//	5 rewards  6 block_time{1}  7 block_height{1}  8 slot
func (b *Block) Marshal() []byte {
	var out []byte
	out = appendString(out, 1, b.PreviousBlockhash)
	out = appendString(out, 2, b.Blockhash)
	out = appendUint64(out, 3, b.ParentSlot)
	for _, trx := range b.Transactions {
		out = appendMessage(out, 4, trx.marshal())
	}
	for _, r := range b.Rewards {
		out = appendMessage(out, 5, r.marshal())
	}
	if b.BlockTime != 0 {
		out = appendMessage(out, 6, appendInt64(nil, 1, b.BlockTime))
	}
	if b.BlockHeight != nil {
		out = appendMessage(out, 7, appendUint64(nil, 1, *b.BlockHeight))
	}
	out = appendUint64(out, 8, b.Slot)
	return out
}

// Marshal encodes the account artifact.
//
//	1 slot  2 hash  3 parent_hash  4 parent_slot  5 timestamp{1}  6 accounts
func (ab *AccountBlock) Marshal() []byte {
	var out []byte
	out = appendUint64(out, 1, ab.Slot)
	out = appendString(out, 2, ab.Hash)
	out = appendString(out, 3, ab.ParentHash)
	out = appendUint64(out, 4, ab.ParentSlot)
	if ab.Timestamp != 0 {
		out = appendMessage(out, 5, appendInt64(nil, 1, ab.Timestamp))
	}
	for _, acc := range ab.Accounts {
		out = appendMessage(out, 6, acc.marshal())
	}
	return out
}

// 1 address  2 data  3 owner  4 deleted
func (a *Account) marshal() []byte {
	var out []byte
	out = appendBytes(out, 1, a.Address)
	out = appendBytes(out, 2, a.Data)
	out = appendBytes(out, 3, a.Owner)
	out = appendBool(out, 4, a.Deleted)
	return out
}

// 1 pubkey  2 lamports  3 post_balance  4 reward_type  5 commission
func (r *Reward) marshal() []byte {
	var out []byte
	out = appendString(out, 1, r.Pubkey)
	out = appendInt64(out, 2, r.Lamports)
	out = appendUint64(out, 3, r.PostBalance)
	out = appendUint64(out, 4, uint64(r.Kind))
	// Downstream compatibility: a zero commission renders empty.
	if r.Commission != "0" {
		out = appendString(out, 5, r.Commission)
	}
	return out
}

// 1 transaction  2 meta
func (ct *ConfirmedTransaction) marshal() []byte {
	var out []byte
	if ct.Transaction != nil {
		out = appendMessage(out, 1, ct.Transaction.marshal())
	}
	if ct.Meta != nil {
		out = appendMessage(out, 2, ct.Meta.marshal())
	}
	return out
}

// 1 signatures  2 message
func (t *Transaction) marshal() []byte {
	var out []byte
	for _, sig := range t.Signatures {
		out = appendBytes(out, 1, sig)
	}
	if t.Message != nil {
		out = appendMessage(out, 2, t.Message.marshal())
	}
	return out
}

// 1 header  2 account_keys  3 recent_blockhash  4 instructions
// 5 versioned  6 address_table_lookups
func (m *Message) marshal() []byte {
	var out []byte
	if m.Header != nil {
		out = appendMessage(out, 1, m.Header.marshal())
	}
	for _, key := range m.AccountKeys {
		k := key
		out = appendBytes(out, 2, k[:])
	}
	out = appendBytes(out, 3, m.RecentBlockhash)
	for _, ins := range m.Instructions {
		out = appendMessage(out, 4, ins.marshal())
	}
	out = appendBool(out, 5, m.Versioned)
	for _, lookup := range m.AddressTableLookup {
		out = appendMessage(out, 6, lookup.marshal())
	}
	return out
}

// 1 num_required_signatures  2 num_readonly_signed  3 num_readonly_unsigned
func (h *MessageHeader) marshal() []byte {
	var out []byte
	out = appendUint64(out, 1, uint64(h.NumRequiredSignatures))
	out = appendUint64(out, 2, uint64(h.NumReadonlySignedAccounts))
	out = appendUint64(out, 3, uint64(h.NumReadonlyUnsignedAccounts))
	return out
}

// 1 program_id_index  2 accounts  3 data
func (ci *CompiledInstruction) marshal() []byte {
	var out []byte
	out = appendUint64(out, 1, uint64(ci.ProgramIDIndex))
	out = appendBytes(out, 2, ci.Accounts)
	out = appendBytes(out, 3, ci.Data)
	return out
}

// 1 account_key  2 writable_indexes  3 readonly_indexes
func (l *AddressTableLookup) marshal() []byte {
	var out []byte
	key := l.AccountKey
	out = appendBytes(out, 1, key[:])
	out = appendBytes(out, 2, l.WritableIndexes)
	out = appendBytes(out, 3, l.ReadonlyIndexes)
	return out
}

// 1 err  2 fee  3 pre_balances  4 post_balances  5 log_messages
// 6 loaded_writable_addresses  7 loaded_readonly_addresses
func (m *TransactionStatusMeta) marshal() []byte {
	var out []byte
	if m.Err != nil {
		out = appendMessage(out, 1, appendString(nil, 1, m.Err.Err))
	}
	out = appendUint64(out, 2, m.Fee)
	out = appendPackedUint64(out, 3, m.PreBalances)
	out = appendPackedUint64(out, 4, m.PostBalances)
	for _, msg := range m.LogMessages {
		out = appendString(out, 5, msg)
	}
	for _, addr := range m.LoadedWritableAddresses {
		a := addr
		out = appendBytes(out, 6, a[:])
	}
	for _, addr := range m.LoadedReadonlyAddresses {
		a := addr
		out = appendBytes(out, 7, a[:])
	}
	return out
}
