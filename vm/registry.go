package vm

import (
	"fmt"
	"sync"

	"github.com/happybigmtn/trust-bazaar/crypto"
)

// Program is the entrypoint every on-ledger program implements. accounts
// are in the order the instruction listed them; data is the raw payload.
type Program func(ctx *Context, accounts []*AccountInfo, data []byte) error

// Registry maps program ids to programs. Thread-safe for concurrent registration.
type Registry struct {
	mu       sync.RWMutex
	programs map[crypto.Pubkey]Program
	names    map[crypto.Pubkey]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		programs: make(map[crypto.Pubkey]Program),
		names:    make(map[crypto.Pubkey]string),
	}
}

// Register associates id with p. Panics on duplicate registration.
func (r *Registry) Register(id crypto.Pubkey, name string, p Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.programs[id]; exists {
		panic(fmt.Sprintf("vm: program already registered at %s (%s)", id, r.names[id]))
	}
	r.programs[id] = p
	r.names[id] = name
}

// Lookup returns the program registered at id.
func (r *Registry) Lookup(id crypto.Pubkey) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[id]
	return p, ok
}

// Name returns the registered name of id, or its address.
func (r *Registry) Name(id crypto.Pubkey) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n, ok := r.names[id]; ok {
		return n
	}
	return id.String()
}

// globalRegistry is the package-level registry that modules register into.
var globalRegistry = NewRegistry()

// Register adds a program to the global registry.
// Module init() functions call this to self-register.
func Register(id crypto.Pubkey, name string, p Program) {
	globalRegistry.Register(id, name, p)
}
