package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
)

// prefixAccount namespaces every ledger account. The root covers exactly
// this prefix, so block and index keys sharing the DB never affect it.
const prefixAccount = "acct:"

type stateSnapshot struct {
	dirty map[string][]byte
}

// StateDB implements core.State on top of a DB: an address-keyed account
// store with an in-memory write buffer, snapshot/rollback, and a
// deterministic state root. It is safe for concurrent readers alongside
// the single writer.
type StateDB struct {
	mu        sync.RWMutex
	db        DB
	dirty     map[string][]byte
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:    db,
		dirty: make(map[string][]byte),
	}
}

func accountKey(addr crypto.Pubkey) string {
	return prefixAccount + addr.String()
}

func (s *StateDB) get(key string) ([]byte, error) {
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

// GetAccount returns a copy of the stored account; callers must SetAccount
// to persist changes.
func (s *StateDB) GetAccount(addr crypto.Pubkey) (*core.Account, error) {
	s.mu.RLock()
	data, err := s.get(accountKey(addr))
	s.mu.RUnlock()
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: addr}, nil
	}
	if err != nil {
		return nil, err
	}
	var acc core.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", addr, err)
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.dirty[accountKey(acc.Address)] = data
	s.mu.Unlock()
	return nil
}

// AccountsOwnedBy scans committed and buffered accounts for owner. It is
// an audit path, not used by programs.
func (s *StateDB) AccountsOwnedBy(owner crypto.Pubkey) ([]*core.Account, error) {
	s.mu.RLock()
	merged, err := s.mergedView()
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	keys := sortedKeys(merged)
	var out []*core.Account
	for _, k := range keys {
		var acc core.Account
		if err := json.Unmarshal(merged[k], &acc); err != nil {
			return nil, fmt.Errorf("decode account %s: %w", strings.TrimPrefix(k, prefixAccount), err)
		}
		if acc.Owner == owner {
			out = append(out, &acc)
		}
	}
	return out, nil
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, stateSnapshot{dirty: copyBuffer(s.dirty)})
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot
// and discards it and every later snapshot.
func (s *StateDB) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	s.dirty = copyBuffer(s.snapshots[id].dirty)
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of every account: committed
// entries merged with the write buffer, sorted by key, length-prefix
// encoded, then hashed. It does not flush.
func (s *StateDB) ComputeRoot() string {
	s.mu.RLock()
	merged, err := s.mergedView()
	s.mu.RUnlock()
	if err != nil {
		log.Errorf("compute root: %v", err)
		return ""
	}
	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range sortedKeys(merged) {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// batch and then clears it.
func (s *StateDB) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	if err := batch.Write(); err != nil {
		return err
	}
	log.Debugf("Committed %d accounts", len(s.dirty))
	s.dirty = make(map[string][]byte)
	s.snapshots = nil
	return nil
}

func (s *StateDB) mergedView() (map[string][]byte, error) {
	merged := make(map[string][]byte)
	it := s.db.NewIterator([]byte(prefixAccount))
	for it.Next() {
		merged[string(it.Key())] = append([]byte(nil), it.Value()...)
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, err
	}
	for k, v := range s.dirty {
		merged[k] = v
	}
	return merged, nil
}

func copyBuffer(src map[string][]byte) map[string][]byte {
	dst := make(map[string][]byte, len(src))
	for k, v := range src {
		dst[k] = append([]byte(nil), v...)
	}
	return dst
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
