package state

import (
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru/v2"

	"otcswap/storage"
)

// DefaultCacheSize bounds the number of decoded-on-demand records kept in the
// read cache.
const DefaultCacheSize = 4096

// DefaultMaxAttempts caps how many times Update re-runs a transaction that
// lost an optimistic concurrency race.
const DefaultMaxAttempts = 16

var (
	// ErrConflict is returned by Commit when a key read by the transaction was
	// modified by another transaction that committed first.
	ErrConflict = errors.New("state: transaction conflict")
	// ErrTxClosed is returned when a committed or discarded transaction is reused.
	ErrTxClosed = errors.New("state: transaction closed")
)

// Manager provides transactional access to the ledger records persisted in
// the underlying database. Each transaction buffers its writes and records
// the version of every key it read; Commit applies the writes in a single
// storage batch only if none of those keys changed in the meantime.
type Manager struct {
	db storage.Database

	mu       sync.RWMutex
	versions map[string]uint64
	cache    *lru.Cache[string, []byte]

	maxAttempts int
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) (*Manager, error) {
	if db == nil {
		return nil, fmt.Errorf("state: database required")
	}
	cache, err := lru.New[string, []byte](DefaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("state: build cache: %w", err)
	}
	return &Manager{
		db:          db,
		versions:    make(map[string]uint64),
		cache:       cache,
		maxAttempts: DefaultMaxAttempts,
	}, nil
}

// SetMaxAttempts overrides the retry budget used by Update.
func (m *Manager) SetMaxAttempts(n int) {
	if n <= 0 {
		n = 1
	}
	m.maxAttempts = n
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// load returns the committed value and version for a hashed key. Callers must
// hold m.mu.
func (m *Manager) load(hashed []byte) ([]byte, uint64, error) {
	id := string(hashed)
	version := m.versions[id]
	if cached, ok := m.cache.Get(id); ok {
		return cached, version, nil
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, version, nil
	}
	if err != nil {
		return nil, version, err
	}
	m.cache.Add(id, data)
	return data, version, nil
}

// KVGet retrieves the committed value stored under the supplied key outside
// any transaction. The boolean return value indicates whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	m.mu.RLock()
	data, _, err := m.load(kvKey(key))
	m.mu.RUnlock()
	if err != nil {
		return false, err
	}
	return decode(data, out)
}

func decode(data []byte, out interface{}) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Begin opens a new transaction against the latest committed state.
func (m *Manager) Begin() *Tx {
	return &Tx{
		m:      m,
		reads:  make(map[string]uint64),
		writes: make(map[string][]byte),
	}
}

// Update runs fn inside a transaction and commits it. When the commit loses
// a race with a concurrent writer the transaction is re-run from scratch, up
// to the configured attempt budget. Any error returned by fn aborts the
// transaction without side effects.
func (m *Manager) Update(fn func(tx *Tx) error) error {
	var err error
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		tx := m.Begin()
		if err = fn(tx); err != nil {
			tx.Discard()
			return err
		}
		err = tx.Commit()
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}

// View runs fn against a read-only transaction. Writes performed by fn are
// discarded.
func (m *Manager) View(fn func(tx *Tx) error) error {
	tx := m.Begin()
	defer tx.Discard()
	return fn(tx)
}

// Tx is a single atomic unit of ledger work.
type Tx struct {
	m      *Manager
	reads  map[string]uint64
	writes map[string][]byte
	closed bool
}

// KVGet decodes the value under key, observing the transaction's own pending
// writes first.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if tx.closed {
		return false, ErrTxClosed
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	id := string(hashed)
	if pending, ok := tx.writes[id]; ok {
		return decode(pending, out)
	}
	tx.m.mu.RLock()
	data, version, err := tx.m.load(hashed)
	tx.m.mu.RUnlock()
	if err != nil {
		return false, err
	}
	if _, seen := tx.reads[id]; !seen {
		tx.reads[id] = version
	}
	return decode(data, out)
}

// KVPut RLP-encodes value and stages it under key.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if tx.closed {
		return ErrTxClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	tx.writes[string(kvKey(key))] = encoded
	return nil
}

// KVDelete stages the removal of key.
func (tx *Tx) KVDelete(key []byte) error {
	if tx.closed {
		return ErrTxClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	tx.writes[string(kvKey(key))] = nil
	return nil
}

// Discard drops all staged writes.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.writes = nil
	tx.reads = nil
}

// Commit validates the read set and atomically applies the staged writes.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	defer tx.Discard()
	if len(tx.writes) == 0 {
		return nil
	}

	m := tx.m
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, version := range tx.reads {
		if m.versions[id] != version {
			return ErrConflict
		}
	}

	batch := m.db.NewBatch()
	for id, value := range tx.writes {
		if value == nil {
			batch.Delete([]byte(id))
			continue
		}
		batch.Put([]byte(id), value)
	}
	if err := batch.Write(); err != nil {
		// The store may hold a partial view of the batch on some backends;
		// drop cached entries so subsequent reads go to disk.
		for id := range tx.writes {
			m.cache.Remove(id)
			m.versions[id]++
		}
		return fmt.Errorf("state: commit: %w", err)
	}
	for id, value := range tx.writes {
		m.versions[id]++
		if value == nil {
			m.cache.Remove(id)
			continue
		}
		m.cache.Add(id, value)
	}
	return nil
}
