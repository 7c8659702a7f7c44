package storage

import "fmt"

// DefaultStoreKind is the backend used when none is requested.
const DefaultStoreKind = "memory"

// NewStore builds a backend by kind. path is the data file for the json and
// sqlite backends.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "json":
		return NewJSONFileStore(path), nil
	case "sqlite":
		return newSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
