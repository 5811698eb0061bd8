package badger

// NewMemoryStore creates an in-memory store for testing.
// Closing the store discards its contents.
func NewMemoryStore(opts ...StoreOption) (*Store, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	s, err := NewStoreWithBackend(backend, "", opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	s.ownsBackend = true
	return s, nil
}
