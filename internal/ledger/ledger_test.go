package ledger

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendledger-backend/internal/platform/config"
)

func TestParseItemID(t *testing.T) {
	id, canonical, err := ParseItemID(" 007 ")
	require.NoError(t, err)
	assert.Equal(t, "7", canonical)
	assert.Equal(t, int64(7), id.Int64())

	for _, bad := range []string{"", "-1", "0x10", "abc", maxUint256.String() + "0"} {
		_, _, err := ParseItemID(bad)
		assert.Error(t, err, bad)
	}
}

func TestMetadataHashIsKeccak(t *testing.T) {
	a := MetadataHash("Drill", "cordless", "")
	b := MetadataHash("Drill", "cordless", "")
	c := MetadataHash("Drill", "", "cordless")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c, "field boundaries must matter")

	hexed := ChainItem{MetadataHash: a}.MetadataHashHex()
	assert.True(t, strings.HasPrefix(hexed, "0x"))
	assert.Len(t, hexed, 66)
}

func TestMemoryGetItem(t *testing.T) {
	m := NewMemory()
	m.Put(ChainItem{ID: "0042", Owner: "0xabc", Fee: big.NewInt(10), IsAvailable: true})

	it, err := m.GetItem(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "42", it.ID)
	assert.Equal(t, int64(10), it.Fee.Int64())
	assert.Equal(t, int64(0), it.Deposit.Int64())

	it.Fee.SetInt64(99)
	again, _ := m.GetItem(context.Background(), "42")
	assert.Equal(t, int64(10), again.Fee.Int64(), "callers get copies")

	_, err = m.GetItem(context.Background(), "43")
	assert.ErrorIs(t, err, ErrNotFound)

	m.SetAvailable("42", false)
	it, _ = m.GetItem(context.Background(), "42")
	assert.False(t, it.IsAvailable)
	assert.Equal(t, uint64(1), it.Nonce)
}

func TestMemoryFailuresAndDelay(t *testing.T) {
	m := NewMemory()
	m.Put(ChainItem{ID: "1", Owner: "0xabc"})
	boom := errors.New("rpc down")

	m.FailNext(boom)
	_, err := m.GetItem(context.Background(), "1")
	assert.ErrorIs(t, err, boom)
	_, err = m.GetItem(context.Background(), "1")
	assert.NoError(t, err)

	m.SetDelay(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.GetItem(ctx, "1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, m.Reads())
}

func TestMemoryReputationIsCaseInsensitive(t *testing.T) {
	m := NewMemory()
	m.SetReputation("0xABCDEF", 7)
	score, err := m.GetReputation(context.Background(), "0xabcdef")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), score)
}

func TestRegistryABIParses(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(RegistryABI))
	require.NoError(t, err)
	require.Contains(t, parsed.Methods, "getItem")
	assert.Len(t, parsed.Methods["getItem"].Outputs, 7)
	require.Contains(t, parsed.Methods, "reputationOf")
}

func TestClampUint64(t *testing.T) {
	assert.Equal(t, uint64(5), clampUint64(big.NewInt(5)))
	assert.Equal(t, uint64(0), clampUint64(nil))
	assert.Equal(t, uint64(0), clampUint64(big.NewInt(-1)))
	assert.Equal(t, ^uint64(0), clampUint64(maxUint256))
}

func TestFactory(t *testing.T) {
	c, err := New(context.Background(), config.LedgerConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	_, err = New(context.Background(), config.LedgerConfig{Type: "evm", RPCURL: "http://x", RegistryAddress: "nope"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.LedgerConfig{Type: "solana"})
	assert.Error(t, err)
}

// stubCaller answers every eth_call with a fixed result.
type stubCaller struct {
	out []byte
	err error
}

func (c stubCaller) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (c stubCaller) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return c.out, c.err
}

type jsonRPCError struct {
	code int
	msg  string
}

func (e jsonRPCError) Error() string  { return e.msg }
func (e jsonRPCError) ErrorCode() int { return e.code }

func newStubEVM(t *testing.T, c stubCaller) *EVM {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(RegistryABI))
	require.NoError(t, err)
	contract := bind.NewBoundContract(common.HexToAddress("0x00000000000000000000000000000000000000ee"), parsed, c, nil, nil)
	return &EVM{contract: contract}
}

func packGetItem(t *testing.T, owner common.Address, available bool) []byte {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(RegistryABI))
	require.NoError(t, err)
	out, err := parsed.Methods["getItem"].Outputs.Pack(
		owner, big.NewInt(1500), big.NewInt(10), [32]byte{1}, available, big.NewInt(3), big.NewInt(9))
	require.NoError(t, err)
	return out
}

func TestEVMGetItem(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	e := newStubEVM(t, stubCaller{out: packGetItem(t, owner, true)})

	it, err := e.GetItem(context.Background(), "007")
	require.NoError(t, err)
	assert.Equal(t, "7", it.ID)
	assert.Equal(t, owner.Hex(), it.Owner)
	assert.Equal(t, int64(1500), it.Fee.Int64())
	assert.True(t, it.IsAvailable)
	assert.Equal(t, uint64(3), it.MinBorrowerReputation)
	assert.Equal(t, uint64(9), it.Nonce)
}

func TestEVMGetItemNotFound(t *testing.T) {
	cases := []struct {
		name   string
		caller stubCaller
	}{
		{"zero owner", stubCaller{out: packGetItem(t, common.Address{}, false)}},
		{"revert code", stubCaller{err: jsonRPCError{code: 3, msg: "unknown item"}}},
		{"revert message", stubCaller{err: errors.New("execution reverted: ItemNotFound()")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newStubEVM(t, tc.caller).GetItem(context.Background(), "42")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestEVMGetItemTransportErrorIsNotNotFound(t *testing.T) {
	e := newStubEVM(t, stubCaller{err: jsonRPCError{code: -32000, msg: "header not found"}})
	_, err := e.GetItem(context.Background(), "42")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	e = newStubEVM(t, stubCaller{err: errors.New("dial tcp: connection refused")})
	_, err = e.GetItem(context.Background(), "42")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
