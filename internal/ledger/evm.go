package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// RegistryABI covers the two view functions this adapter calls.
const RegistryABI = `[
  {"type":"function","name":"getItem","stateMutability":"view",
   "inputs":[{"name":"itemId","type":"uint256"}],
   "outputs":[
     {"name":"owner","type":"address"},
     {"name":"fee","type":"uint256"},
     {"name":"deposit","type":"uint256"},
     {"name":"metadataHash","type":"bytes32"},
     {"name":"isAvailable","type":"bool"},
     {"name":"minBorrowerReputation","type":"uint256"},
     {"name":"nonce","type":"uint256"}]},
  {"type":"function","name":"reputationOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

// EVM reads the registry contract over JSON-RPC.
type EVM struct {
	client   *ethclient.Client
	contract *bind.BoundContract
}

// DialEVM connects to rpcURL and binds the registry at registryAddress.
func DialEVM(ctx context.Context, rpcURL, registryAddress string) (*EVM, error) {
	if !common.IsHexAddress(registryAddress) {
		return nil, fmt.Errorf("registry address %q is not a hex address", registryAddress)
	}
	parsed, err := abi.JSON(strings.NewReader(RegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parsing registry abi: %w", err)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", rpcURL, err)
	}
	contract := bind.NewBoundContract(common.HexToAddress(registryAddress), parsed, client, client, client)
	return &EVM{client: client, contract: contract}, nil
}

func (e *EVM) GetItem(ctx context.Context, onChainID string) (ChainItem, error) {
	id, canonical, err := ParseItemID(onChainID)
	if err != nil {
		return ChainItem{}, err
	}

	var out []interface{}
	if err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getItem", id); err != nil {
		// 未登録IDで revert するレジストリもある
		if isRevert(err) {
			return ChainItem{}, fmt.Errorf("getItem(%s): %w", canonical, ErrNotFound)
		}
		return ChainItem{}, fmt.Errorf("getItem(%s): %w", canonical, err)
	}
	if len(out) != 7 {
		return ChainItem{}, fmt.Errorf("getItem(%s): unexpected %d outputs", canonical, len(out))
	}

	owner := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	// 未登録IDはゼロアドレスで返ってくる
	if owner == (common.Address{}) {
		return ChainItem{}, ErrNotFound
	}

	return ChainItem{
		ID:                    canonical,
		Owner:                 owner.Hex(),
		Fee:                   *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		Deposit:               *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		MetadataHash:          *abi.ConvertType(out[3], new([32]byte)).(*[32]byte),
		IsAvailable:           *abi.ConvertType(out[4], new(bool)).(*bool),
		MinBorrowerReputation: clampUint64(*abi.ConvertType(out[5], new(*big.Int)).(**big.Int)),
		Nonce:                 clampUint64(*abi.ConvertType(out[6], new(*big.Int)).(**big.Int)),
	}, nil
}

func (e *EVM) GetReputation(ctx context.Context, wallet string) (uint64, error) {
	if !common.IsHexAddress(wallet) {
		return 0, errors.New("wallet is not a hex address")
	}
	var out []interface{}
	if err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, "reputationOf", common.HexToAddress(wallet)); err != nil {
		return 0, fmt.Errorf("reputationOf(%s): %w", wallet, err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("reputationOf(%s): unexpected %d outputs", wallet, len(out))
	}
	return clampUint64(*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)), nil
}

func (e *EVM) Close() error {
	e.client.Close()
	return nil
}

// revertCode is the JSON-RPC error code geth-compatible nodes return for a reverted eth_call.
const revertCode = 3

func isRevert(err error) bool {
	var re rpc.Error
	if errors.As(err, &re) && re.ErrorCode() == revertCode {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

func clampUint64(v *big.Int) uint64 {
	if v == nil || v.Sign() < 0 {
		return 0
	}
	if !v.IsUint64() {
		return math.MaxUint64
	}
	return v.Uint64()
}
