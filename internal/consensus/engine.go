// Package consensus implements the Velora proof-of-work engine and
// difficulty retargeting.
package consensus

import "github.com/pastellaproject/pastella/pkg/block"

// Engine is the interface for consensus implementations.
type Engine interface {
	VerifyHeader(header *block.Header) error
	Prepare(header *block.Header) error
	Seal(blk *block.Block) error
}
