package store

import (
	"errors"
	"fmt"

	"github.com/antigravity-dev/backplane/internal/contract"
)

// ErrEmptyChain is returned when verifying a chain with no receipts.
var ErrEmptyChain = errors.New("chain is empty")

// Chain is an in-memory, append-only sequence of hashed receipts.
type Chain struct {
	receipts []contract.Receipt
}

// Push appends a receipt. The receipt must already carry its hash.
func (c *Chain) Push(r contract.Receipt) error {
	if r.ReceiptSHA256 == "" {
		return fmt.Errorf("chain: receipt %s has no hash", r.Meta.RunID)
	}
	c.receipts = append(c.receipts, r)
	return nil
}

// Len returns the number of receipts in the chain.
func (c *Chain) Len() int { return len(c.receipts) }

// Last returns the most recently pushed receipt, or ok=false when empty.
func (c *Chain) Last() (contract.Receipt, bool) {
	if len(c.receipts) == 0 {
		return contract.Receipt{}, false
	}
	return c.receipts[len(c.receipts)-1], true
}

// Receipts returns the chain contents in push order.
func (c *Chain) Receipts() []contract.Receipt {
	out := make([]contract.Receipt, len(c.receipts))
	copy(out, c.receipts)
	return out
}

// Verify re-hashes every receipt. The first mismatch fails the chain; an
// empty chain returns ErrEmptyChain.
func (c *Chain) Verify() error {
	if len(c.receipts) == 0 {
		return ErrEmptyChain
	}
	for _, r := range c.receipts {
		ok, err := r.VerifyHash()
		if err != nil {
			return fmt.Errorf("chain: hash receipt %s: %w", r.Meta.RunID, err)
		}
		if !ok {
			return fmt.Errorf("chain: receipt %s does not match its hash", r.Meta.RunID)
		}
	}
	return nil
}
