// Package solrpc resolves chain facts over JSON-RPC: the finalized slot at
// startup and block metadata for slots the host confirmed past without
// notifying. Lookups prefer the validator's local endpoint and fall back
// to the remote one; every failure is transient to the caller, which
// simply retries on the next host callback.
package solrpc

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"

	"github.com/streamingfast/firehose-geyser-plugin/internal/codec"
)

// maxSupportedTransactionVersion requests both legacy and v0 transactions
// from getBlock.
var maxSupportedTransactionVersion = uint64(0)

// Client queries the local RPC endpoint with a remote fallback for block
// lookups. A nil remote disables the fallback.
type Client struct {
	log    *logrus.Entry
	local  *rpc.Client
	remote *rpc.Client
}

// New builds a client for the given endpoints. remoteEndpoint may be empty.
func New(localEndpoint, remoteEndpoint string, log *logrus.Entry) *Client {
	c := &Client{
		log:   log,
		local: rpc.New(localEndpoint),
	}
	if remoteEndpoint != "" {
		c.remote = rpc.New(remoteEndpoint)
	}

	return c
}

// FinalizedSlot returns the local endpoint's view of the most recent
// finalized slot.
func (c *Client) FinalizedSlot(ctx context.Context) (uint64, error) {
	slot, err := c.local.GetSlot(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return 0, fmt.Errorf("get finalized slot: %w", err)
	}

	return slot, nil
}

// BlockInfo fetches the metadata of one slot, trying the local endpoint
// first and the remote one on failure. Transaction detail is limited to
// signatures — the count is all the gating logic needs.
func (c *Client) BlockInfo(ctx context.Context, slot uint64) (*codec.BlockInfo, error) {
	block, err := c.getBlock(ctx, c.local, slot)
	if err != nil {
		if c.remote == nil {
			return nil, err
		}

		c.log.WithError(err).WithField("slot", slot).Debug("local block lookup failed, trying remote")

		block, err = c.getBlock(ctx, c.remote, slot)
		if err != nil {
			return nil, err
		}
	}

	return convertBlock(slot, block), nil
}

func (c *Client) getBlock(ctx context.Context, client *rpc.Client, slot uint64) (*rpc.GetBlockResult, error) {
	includeRewards := true

	block, err := client.GetBlockWithOpts(ctx, slot, &rpc.GetBlockOpts{
		TransactionDetails:             rpc.TransactionDetailsSignatures,
		Rewards:                        &includeRewards,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxSupportedTransactionVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", slot, err)
	}

	return block, nil
}

// convertBlock maps an RPC block to the internal metadata shape.
func convertBlock(slot uint64, block *rpc.GetBlockResult) *codec.BlockInfo {
	info := &codec.BlockInfo{
		Slot:             slot,
		ParentSlot:       block.ParentSlot,
		Hash:             block.Blockhash.String(),
		ParentHash:       block.PreviousBlockhash.String(),
		Height:           block.BlockHeight,
		TransactionCount: uint64(len(block.Signatures)),
		Rewards:          convertRewards(block.Rewards),
	}
	if block.BlockTime != nil {
		info.Timestamp = block.BlockTime.Time().Unix()
	}

	return info
}

func convertRewards(rewards []rpc.BlockReward) []*codec.Reward {
	out := make([]*codec.Reward, 0, len(rewards))
	for _, r := range rewards {
		reward := &codec.Reward{
			Pubkey:      r.Pubkey.String(),
			Lamports:    r.Lamports,
			PostBalance: uint64(r.PostBalance),
			Kind:        convertRewardKind(r.RewardType),
		}
		if r.Commission != nil {
			reward.Commission = strconv.FormatUint(uint64(*r.Commission), 10)
		}

		out = append(out, reward)
	}

	return out
}

func convertRewardKind(rt rpc.RewardType) codec.RewardKind {
	switch rt {
	case rpc.RewardTypeFee:
		return codec.RewardKindFee
	case rpc.RewardTypeRent:
		return codec.RewardKindRent
	case rpc.RewardTypeStaking:
		return codec.RewardKindStaking
	case rpc.RewardTypeVoting:
		return codec.RewardKindVoting
	default:
		return codec.RewardKindUnspecified
	}
}
