package trace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

var _ Store = (*Badger)(nil)

// Badger is a Store backed by BadgerDB.
type Badger struct {
	db *badger.DB
}

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	// Dir holds the database files. Required unless InMemory.
	Dir string

	// InMemory keeps everything in memory.
	InMemory bool

	// Logger receives badger warnings and errors. Nil means slog.Default().
	Logger *slog.Logger
}

// OpenBadger opens (or creates) a badger store.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("trace: BadgerOptions.Dir is required for on-disk mode")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithLogger(badgerLogger{logger.With("component", "badger")})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, key Key) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key.bytes())
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (b *Badger) Set(_ context.Context, key Key, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key.bytes(), value)
	})
}

func (b *Badger) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := prefix.prefix()
	return func(yield func(Entry, error) bool) {
		err := b.db.View(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.Prefix = p
			it := txn.NewIterator(iterOpts)
			defer it.Close()

			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				item := it.Item()
				val, err := item.ValueCopy(nil)
				if err != nil {
					if !yield(Entry{}, err) {
						return nil
					}
					continue
				}
				if !yield(Entry{Key: parseKey(item.KeyCopy(nil)), Value: val}, nil) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(Entry{}, err)
		}
	}
}

func (b *Badger) DeletePrefix(_ context.Context, prefix Key) error {
	exact := prefix.bytes()
	p := prefix.prefix()
	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(exact); err == nil {
			keys = append(keys, exact)
		}
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = p
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger warnings and errors to slog and drops its
// info and debug chatter.
type badgerLogger struct {
	l *slog.Logger
}

func (g badgerLogger) Errorf(f string, v ...any)   { g.l.Error(trimf(f, v...)) }
func (g badgerLogger) Warningf(f string, v ...any) { g.l.Warn(trimf(f, v...)) }
func (badgerLogger) Infof(string, ...any)          {}
func (badgerLogger) Debugf(string, ...any)         {}

func trimf(f string, v ...any) string {
	return string(bytes.TrimSpace(fmt.Appendf(nil, f, v...)))
}
