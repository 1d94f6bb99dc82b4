package types

import (
	"github.com/ethereum/go-ethereum/core/types"
)

// BlockHead is the canonical summary of a chain head. It is constructed once
// from a raw provider response and never mutated afterwards; everything the
// gateway pushes to subscribers is derived from this shape.
type BlockHead struct {
	// Number is the block height. Heights can exceed the JavaScript safe
	// integer range, so outbound envelopes always serialize it as a string.
	Number uint64

	// Hash is the 0x-prefixed block hash.
	Hash string

	// Timestamp is the block timestamp in seconds.
	Timestamp uint64

	// GasUsed is the total gas used by the block.
	GasUsed uint64

	// Miner is the coinbase address of the block.
	Miner string

	// TxCount is the number of transactions in the block. Zero when the head
	// was normalized from a bare header push that carries no transaction list.
	TxCount int
}

// HeadFromBlock normalizes a full block into a BlockHead.
func HeadFromBlock(block *types.Block) BlockHead {
	return BlockHead{
		Number:    block.NumberU64(),
		Hash:      block.Hash().Hex(),
		Timestamp: block.Time(),
		GasUsed:   block.GasUsed(),
		Miner:     block.Coinbase().Hex(),
		TxCount:   len(block.Transactions()),
	}
}

// HeadFromHeader normalizes a pushed header into a BlockHead. Subscription
// pushes carry no transaction list, so TxCount is left at zero.
func HeadFromHeader(header *types.Header) BlockHead {
	return BlockHead{
		Number:    header.Number.Uint64(),
		Hash:      header.Hash().Hex(),
		Timestamp: header.Time,
		GasUsed:   header.GasUsed,
		Miner:     header.Coinbase.Hex(),
	}
}
