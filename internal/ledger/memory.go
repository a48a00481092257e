package ledger

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process registry used for local runs and tests.
// Safe for concurrent use.
type Memory struct {
	mu          sync.Mutex
	items       map[string]ChainItem
	reputations map[string]uint64
	delay       time.Duration
	failNext    []error
	reads       int
}

func NewMemory() *Memory {
	return &Memory{
		items:       make(map[string]ChainItem),
		reputations: make(map[string]uint64),
	}
}

// Put registers or replaces an item; the id is canonicalised.
func (m *Memory) Put(item ChainItem) {
	_, canonical, err := ParseItemID(item.ID)
	if err != nil {
		panic(err)
	}
	item.ID = canonical
	if item.Fee == nil {
		item.Fee = new(big.Int)
	}
	if item.Deposit == nil {
		item.Deposit = new(big.Int)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[canonical] = item
}

func (m *Memory) Delete(onChainID string) {
	_, canonical, _ := ParseItemID(onChainID)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, canonical)
}

func (m *Memory) SetAvailable(onChainID string, available bool) {
	_, canonical, _ := ParseItemID(onChainID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[canonical]; ok {
		it.IsAvailable = available
		it.Nonce++
		m.items[canonical] = it
	}
}

func (m *Memory) SetReputation(wallet string, score uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reputations[strings.ToLower(wallet)] = score
}

// SetDelay makes every read wait d (or until the context ends).
func (m *Memory) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// FailNext queues errors returned by the next reads, one per call.
func (m *Memory) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = append(m.failNext, errs...)
}

// Reads reports how many reads have been served, failed ones included.
func (m *Memory) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *Memory) begin(ctx context.Context) error {
	m.mu.Lock()
	m.reads++
	delay := m.delay
	var err error
	if len(m.failNext) > 0 {
		err, m.failNext = m.failNext[0], m.failNext[1:]
	}
	m.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

func (m *Memory) GetItem(ctx context.Context, onChainID string) (ChainItem, error) {
	_, canonical, err := ParseItemID(onChainID)
	if err != nil {
		return ChainItem{}, err
	}
	if err := m.begin(ctx); err != nil {
		return ChainItem{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[canonical]
	if !ok {
		return ChainItem{}, ErrNotFound
	}
	it.Fee = new(big.Int).Set(it.Fee)
	it.Deposit = new(big.Int).Set(it.Deposit)
	return it, nil
}

func (m *Memory) GetReputation(ctx context.Context, wallet string) (uint64, error) {
	if err := m.begin(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reputations[strings.ToLower(wallet)], nil
}

func (m *Memory) Close() error { return nil }
