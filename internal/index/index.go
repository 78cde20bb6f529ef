// Package index provides the processed-document index that gates
// summarization.
//
// Before a document is summarized the pipeline computes a stable identifier
// for its (contract, document) pair and looks it up here. A hit means the
// stored summary is reused and the completion service is never called; a
// miss means the pipeline summarizes and writes the result back under the
// same identifier. This is the sole de-duplication mechanism in the
// pipeline.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"docket/internal/logging"
	"docket/internal/textutil"
)

const keyPrefix = "processed_"

// Record is the stored result for one processed (contract, document) pair.
// Metadata values are strings so the record survives round-trips unchanged.
type Record struct {
	Summary   string            `json:"summary"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	IndexedAt time.Time         `json:"indexed_at"`
}

// Index is a badger-backed key/value store of processed documents.
type Index struct {
	db     *badger.DB
	logger *slog.Logger
}

// loggerAdapter adapts slog.Logger to the badger.Logger interface.
type loggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*loggerAdapter)(nil)

func (l *loggerAdapter) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

// Badger's info output is internal compaction chatter, so it lands at debug.
func (l *loggerAdapter) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens the index at path, creating the directory if needed. With
// inMemory set the index lives entirely in memory, which tests use to avoid
// disk state.
func Open(path string, inMemory bool, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("stat index directory: %w", err)
			}
			if err := os.MkdirAll(path, 0o755); err != nil {
				return nil, fmt.Errorf("create index directory: %w", err)
			}
		} else if !info.IsDir() {
			return nil, fmt.Errorf("index path %s is not a directory", path)
		}
		opts = badger.DefaultOptions(path)
	}

	opts.Logger = &loggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &Index{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Key derives the stable identifier for a (contract, document) pair:
// processed_<contract>_<stem>, with both tokens sanitized so repeated runs
// over the same inputs always produce the same key.
func Key(contractID, filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	return keyPrefix + textutil.SanitizeToken(contractID) + "_" + textutil.SanitizeToken(stem)
}

// Lookup fetches the record stored under key. The second return value
// reports whether the key exists.
func (ix *Index) Lookup(key string) (Record, bool, error) {
	var record Record
	found := false
	err := ix.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &record); err != nil {
				return fmt.Errorf("decode index record: %w", err)
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return Record{}, false, fmt.Errorf("index lookup %s: %w", key, err)
	}
	return record, found, nil
}

// Put stores record under key, overwriting any previous value. A zero
// IndexedAt is stamped with the current time.
func (ix *Index) Put(key string, record Record) error {
	if record.IndexedAt.IsZero() {
		record.IndexedAt = time.Now().UTC()
	}
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode index record: %w", err)
	}
	err = ix.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("index put %s: %w", key, err)
	}
	return nil
}

// Count reports how many processed documents the index holds.
func (ix *Index) Count() (int, error) {
	count := 0
	err := ix.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		iter := txn.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("index count: %w", err)
	}
	return count, nil
}
