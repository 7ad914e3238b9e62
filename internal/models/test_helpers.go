package models

// NewTestDataStore creates an empty in-memory store for tests. Populate it
// with the Set* methods or ReloadAll.
func NewTestDataStore() *InMemoryDataStore {
	return NewInMemoryDataStore()
}

// IntPtr is a convenience for building placements with an explicit hourly cap
// in tests and fixtures.
func IntPtr(v int) *int { return &v }
