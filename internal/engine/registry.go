package engine

import (
	"sort"
	"sync"

	"github.com/dexcore/matching-engine/internal/book"
)

// Registry maps trading pairs to their order books, creating books lazily on
// first reference. It guarantees exactly one Book instance per pair for the
// process lifetime and is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	books map[string]*book.Book
}

// NewRegistry creates an empty book registry.
func NewRegistry() *Registry {
	return &Registry{
		books: make(map[string]*book.Book),
	}
}

// Get returns the book for a pair if one has been created.
func (r *Registry) Get(pair string) (*book.Book, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.books[pair]
	return b, ok
}

// GetOrCreate returns the pair's book, creating it on first reference.
func (r *Registry) GetOrCreate(pair string) *book.Book {
	r.mu.RLock()
	b, ok := r.books[pair]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another submission may have created the book while we upgraded the
	// lock.
	if b, ok := r.books[pair]; ok {
		return b
	}

	b = book.New(pair)
	r.books[pair] = b
	return b
}

// Pairs returns all pairs with a book, sorted for deterministic iteration.
func (r *Registry) Pairs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pairs := make([]string, 0, len(r.books))
	for pair := range r.books {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	return pairs
}
