// Package repository defines the store interfaces the orchestration core
// depends on. Persistence is an injected concern: the core never assumes a
// particular engine beyond these contracts.
package repository

// Store is the aggregate persistence interface of the orchestration core.
// It embeds the per-aggregate store interfaces to separate concerns.
type Store interface {
	RunStore
	EventStore
	InstigationStore
	BackfillStore

	// Close releases resources (such as database connections) used by the store.
	Close() error
}
