// Package ledger is a read-only adapter over the on-chain item registry.
// It carries no business rules; callers decide what a chain state means.
package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ErrNotFound is returned when the registry holds no item at the requested id.
var ErrNotFound = errors.New("ledger: item not found")

// ChainItem is the registry's view of one item.
type ChainItem struct {
	ID                    string
	Owner                 string
	Fee                   *big.Int
	Deposit               *big.Int
	MetadataHash          [32]byte
	IsAvailable           bool
	MinBorrowerReputation uint64
	Nonce                 uint64
}

// MetadataHashHex renders the metadata hash as 0x-prefixed hex.
func (c ChainItem) MetadataHashHex() string {
	return "0x" + hex.EncodeToString(c.MetadataHash[:])
}

type Client interface {
	// GetItem returns ErrNotFound for ids the registry does not know.
	GetItem(ctx context.Context, onChainID string) (ChainItem, error)
	// GetReputation returns the reputation score recorded for wallet; unknown wallets score 0.
	GetReputation(ctx context.Context, wallet string) (uint64, error)
	Close() error
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ParseItemID validates an on-chain item id (a uint256 in decimal) and returns
// its canonical form, so "007" and "7" cannot be linked as different ids.
func ParseItemID(s string) (*big.Int, string, error) {
	s = strings.TrimSpace(s)
	id, ok := new(big.Int).SetString(s, 10)
	if !ok || id.Sign() < 0 || id.Cmp(maxUint256) > 0 {
		return nil, "", fmt.Errorf("on-chain item id %q is not a uint256", s)
	}
	return id, id.String(), nil
}

// MetadataHash is keccak256(title 0x00 description 0x00 imageURL), the value the
// registry stores as metadataHash when an item is minted from this mirror.
func MetadataHash(title, description, imageURL string) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(description))
	h.Write([]byte{0})
	h.Write([]byte(imageURL))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
