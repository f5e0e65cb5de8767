package cursor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const badgerKeyPrefix = "rowsync/watermark/"

// BadgerStore keeps watermarks in an embedded Badger database.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens (or creates) a Badger database at path.
// An empty path opens an in-memory database.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cursor store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Get returns the watermark recorded for table.
func (s *BadgerStore) Get(ctx context.Context, table string) (Watermark, bool, error) {
	if err := ctx.Err(); err != nil {
		return Watermark{}, false, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(table))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Watermark{}, false, nil
	}
	if err != nil {
		return Watermark{}, false, fmt.Errorf("get cursor for %s: %w", table, err)
	}

	wm, err := decodeWatermark(data)
	if err != nil {
		return Watermark{}, false, fmt.Errorf("get cursor for %s: %w", table, err)
	}
	return wm, !wm.IsZero(), nil
}

// Set records wm for table. The write is synced before Set returns unless
// the database is in-memory.
func (s *BadgerStore) Set(ctx context.Context, table string, wm Watermark) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if wm.IsZero() {
		return errors.New("set cursor: empty watermark")
	}

	data, err := encodeWatermark(wm)
	if err != nil {
		return fmt.Errorf("set cursor for %s: %w", table, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(table), data)
	})
	if err != nil {
		return fmt.Errorf("set cursor for %s: %w", table, err)
	}
	if !s.db.Opts().InMemory {
		if err := s.db.Sync(); err != nil {
			return fmt.Errorf("sync cursor store: %w", err)
		}
	}
	return nil
}

func badgerKey(table string) []byte {
	return []byte(badgerKeyPrefix + table)
}

// envelope is the stored form of a watermark. Kind keeps the Go type
// across the round trip.
type envelope struct {
	Kind  string    `msgpack:"k"`
	Time  time.Time `msgpack:"t,omitempty"`
	Int   int64     `msgpack:"i,omitempty"`
	Float float64   `msgpack:"f,omitempty"`
	Str   string    `msgpack:"s,omitempty"`
}

const (
	kindTime   = "time"
	kindInt    = "int"
	kindFloat  = "float"
	kindString = "string"
)

func encodeWatermark(wm Watermark) ([]byte, error) {
	var env envelope
	switch v := wm.Value().(type) {
	case time.Time:
		env = envelope{Kind: kindTime, Time: v}
	case int64:
		env = envelope{Kind: kindInt, Int: v}
	case float64:
		env = envelope{Kind: kindFloat, Float: v}
	case string:
		env = envelope{Kind: kindString, Str: v}
	default:
		return nil, fmt.Errorf("unsupported watermark type %T", v)
	}
	return msgpack.Marshal(&env)
}

func decodeWatermark(data []byte) (Watermark, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Watermark{}, fmt.Errorf("decode watermark: %w", err)
	}
	switch env.Kind {
	case kindTime:
		return New(env.Time), nil
	case kindInt:
		return New(env.Int), nil
	case kindFloat:
		return New(env.Float), nil
	case kindString:
		return New(env.Str), nil
	}
	return Watermark{}, fmt.Errorf("decode watermark: unknown kind %q", env.Kind)
}
