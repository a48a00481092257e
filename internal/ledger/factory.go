package ledger

import (
	"context"
	"fmt"

	"lendledger-backend/internal/platform/config"
)

// New creates the ledger backend selected by cfg.Type.
func New(ctx context.Context, cfg config.LedgerConfig) (Client, error) {
	switch cfg.Type {
	case "memory":
		return NewMemory(), nil
	case "evm":
		return DialEVM(ctx, cfg.RPCURL, cfg.RegistryAddress)
	default:
		return nil, fmt.Errorf("unknown ledger type %q", cfg.Type)
	}
}
