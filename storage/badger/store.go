package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/kbindex/storage"
)

// defaultChunkSize keeps every value well under Badger's per-entry and
// per-transaction limits.
const defaultChunkSize = 4 << 20

// Store implements storage.ObjectStore on BadgerDB.
//
// Objects are split into chunks written under a fresh generation. The
// manifest that points readers at the new generation is switched in a single
// transaction, so a reader always sees either the old or the new object.
type Store struct {
	backend     *Backend
	ownsBackend bool
	prefix      string
	chunkSize   int
	mu          sync.Mutex // serializes Save
	closed      atomic.Bool
	logger      *slog.Logger
}

var _ storage.ObjectStore = (*Store)(nil)

// StoreOption configures a Store.
type StoreOption func(*Store) error

// WithChunkSize sets the maximum size of a stored chunk in bytes.
func WithChunkSize(size int) StoreOption {
	return func(s *Store) error {
		if size < 1 {
			return fmt.Errorf("chunk size must be positive, got %d", size)
		}
		s.chunkSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewStore opens (or creates) a BadgerDB directory at path and returns a
// store whose keys are namespaced by prefix. Closing the store closes the
// database.
func NewStore(path, prefix string, opts ...StoreOption) (*Store, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	s, err := NewStoreWithBackend(backend, prefix, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	s.ownsBackend = true
	return s, nil
}

// NewStoreWithBackend creates a store on an already open backend.
// Closing the store leaves the backend open.
func NewStoreWithBackend(backend *Backend, prefix string, opts ...StoreOption) (*Store, error) {
	if backend == nil {
		return nil, errors.New("badger backend required")
	}
	s := &Store{
		backend:   backend,
		prefix:    prefix,
		chunkSize: defaultChunkSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "badger-store")
	return s, nil
}

// Close releases the store, closing the database if the store opened it.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.ownsBackend {
		return s.backend.Close()
	}
	return nil
}

func (s *Store) name(key string) (string, error) {
	if key == "" || strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidKey, key)
	}
	return s.prefix + key, nil
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() || s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return ctx.Err()
}

// Load returns the object stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	name, err := s.name(key)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.backend.WithTx(func(tx *badger.Txn) error {
		m, err := readManifest(tx, name)
		if err != nil {
			return err
		}

		data = make([]byte, 0, m.size)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(name, m.generation)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		chunks := 0
		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				data = append(data, val...)
				return nil
			})
			if err != nil {
				return err
			}
			chunks++
		}
		if chunks != m.chunks || len(data) != m.size {
			return fmt.Errorf("%w: object %q has %d chunks (%d bytes), manifest expects %d (%d bytes)",
				storage.ErrSerializationFailed, key, chunks, len(data), m.chunks, m.size)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save replaces the object stored under key with data.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	name, err := s.name(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var previous *manifest
	err = s.backend.WithTx(func(tx *badger.Txn) error {
		m, err := readManifest(tx, name)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		previous = m
		return err
	}, false)
	if err != nil {
		return err
	}

	next := &manifest{generation: 1, size: len(data)}
	if previous != nil {
		next.generation = previous.generation + 1
	}

	wb := s.backend.NewWriteBatch()
	defer wb.Cancel()
	for off := 0; off < len(data); off += s.chunkSize {
		end := min(off+s.chunkSize, len(data))
		if err := wb.Set(makeChunkKey(name, next.generation, uint32(next.chunks)), data[off:end]); err != nil {
			return err
		}
		next.chunks++
	}
	if err := wb.Flush(); err != nil {
		return err
	}

	err = s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeManifestKey(name), marshalManifest(next)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	s.logger.Debug("saved object", "key", key, "bytes", next.size, "chunks", next.chunks, "generation", next.generation)

	if previous != nil {
		if err := s.dropGeneration(name, previous.generation); err != nil {
			// Orphaned chunks are never read again.
			s.logger.Warn("error removing previous object generation", "key", key, "err", err)
		}
	}
	return nil
}

// dropGeneration deletes every chunk of one object generation.
func (s *Store) dropGeneration(name string, generation uint64) error {
	var keys [][]byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makeChunkPrefix(name, generation)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		return nil
	}, false)
	if err != nil {
		return err
	}

	wb := s.backend.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// manifest describes the current generation of a stored object.
type manifest struct {
	generation uint64
	chunks     int
	size       int
}

func marshalManifest(m *manifest) []byte {
	buf := make([]byte, varint.Uint64.Size(m.generation)+
		varint.PositiveInt.Size(m.chunks)+
		varint.PositiveInt.Size(m.size))
	n := varint.Uint64.Marshal(m.generation, buf)
	n += varint.PositiveInt.Marshal(m.chunks, buf[n:])
	varint.PositiveInt.Marshal(m.size, buf[n:])
	return buf
}

func unmarshalManifest(data []byte) (*manifest, error) {
	gen, n, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	chunks, n2, err := varint.PositiveInt.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	size, _, err := varint.PositiveInt.Unmarshal(data[n+n2:])
	if err != nil {
		return nil, err
	}
	return &manifest{generation: gen, chunks: chunks, size: size}, nil
}

func readManifest(tx *badger.Txn, name string) (*manifest, error) {
	item, err := tx.Get(makeManifestKey(name))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var m *manifest
	err = item.Value(func(val []byte) error {
		var err error
		m, err = unmarshalManifest(val)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: manifest for %q: %w", storage.ErrSerializationFailed, name, err)
	}
	return m, nil
}
