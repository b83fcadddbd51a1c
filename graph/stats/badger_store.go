package stats

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
)

// Key layout:
//
//	c/nodes            total node count
//	c/rels             total relationship count
//	c/label/<label>    node count per label
//	c/type/<type>      relationship count per type
//	i/<name>           JSON encoded IndexDescriptor
const (
	keyNodes       = "c/nodes"
	keyRels        = "c/rels"
	prefixLabel    = "c/label/"
	prefixType     = "c/type/"
	prefixIndex    = "i/"
	prefixCounters = "c/"
)

// BadgerStore persists statistics in BadgerDB and produces consistent
// snapshots of them.
type BadgerStore struct {
	db *badger.DB
}

var _ Source = (*BadgerStore)(nil)

// OpenBadgerStore opens (or creates) a statistics store at path. An empty
// path opens an in-memory store.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open badger")
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Save replaces the stored statistics with the contents of snap.
func (s *BadgerStore) Save(snap *Snapshot) error {
	d := snap.Data()
	return s.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, prefixCounters); err != nil {
			return err
		}
		if err := deletePrefix(txn, prefixIndex); err != nil {
			return err
		}
		if err := setCount(txn, keyNodes, d.Nodes); err != nil {
			return err
		}
		if err := setCount(txn, keyRels, d.Relationships); err != nil {
			return err
		}
		for label, n := range d.Labels {
			if err := setCount(txn, prefixLabel+label, n); err != nil {
				return err
			}
		}
		for t, n := range d.RelationshipTypes {
			if err := setCount(txn, prefixType+t, n); err != nil {
				return err
			}
		}
		for _, idx := range d.Indexes {
			if err := putIndex(txn, idx); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetNodeCount stores the total node count.
func (s *BadgerStore) SetNodeCount(n float64) error {
	return s.db.Update(func(txn *badger.Txn) error { return setCount(txn, keyNodes, n) })
}

// SetRelationshipCount stores the total relationship count.
func (s *BadgerStore) SetRelationshipCount(n float64) error {
	return s.db.Update(func(txn *badger.Txn) error { return setCount(txn, keyRels, n) })
}

// SetLabelCount stores the node count for label.
func (s *BadgerStore) SetLabelCount(label string, n float64) error {
	return s.db.Update(func(txn *badger.Txn) error { return setCount(txn, prefixLabel+label, n) })
}

// SetRelationshipTypeCount stores the relationship count for relType.
func (s *BadgerStore) SetRelationshipTypeCount(relType string, n float64) error {
	return s.db.Update(func(txn *badger.Txn) error { return setCount(txn, prefixType+relType, n) })
}

// PutIndex stores or replaces an index descriptor.
func (s *BadgerStore) PutIndex(idx IndexDescriptor) error {
	if err := idx.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error { return putIndex(txn, idx) })
}

// DropIndex removes an index descriptor. Dropping an unknown index is not an
// error.
func (s *BadgerStore) DropIndex(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(prefixIndex + name))
		if err != nil && err != badger.ErrKeyNotFound {
			return errors.Wrapf(err, "failed to drop index %s", name)
		}
		return nil
	})
}

// Snapshot reads every statistic inside a single read transaction, so the
// result is consistent even while writers are active.
func (s *BadgerStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	var d Data
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.Key())
			value, err := item.ValueCopy(nil)
			if err != nil {
				return errors.Wrapf(err, "failed to read %s", key)
			}
			if err := decodeEntry(&d, key, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewSnapshot(d)
}

func decodeEntry(d *Data, key string, value []byte) error {
	switch {
	case key == keyNodes:
		return decodeCount(key, value, &d.Nodes)
	case key == keyRels:
		return decodeCount(key, value, &d.Relationships)
	case strings.HasPrefix(key, prefixLabel):
		var n float64
		if err := decodeCount(key, value, &n); err != nil {
			return err
		}
		if d.Labels == nil {
			d.Labels = make(map[string]float64)
		}
		d.Labels[strings.TrimPrefix(key, prefixLabel)] = n
	case strings.HasPrefix(key, prefixType):
		var n float64
		if err := decodeCount(key, value, &n); err != nil {
			return err
		}
		if d.RelationshipTypes == nil {
			d.RelationshipTypes = make(map[string]float64)
		}
		d.RelationshipTypes[strings.TrimPrefix(key, prefixType)] = n
	case strings.HasPrefix(key, prefixIndex):
		var idx IndexDescriptor
		if err := json.Unmarshal(value, &idx); err != nil {
			return errors.Wrapf(err, "failed to decode %s", key)
		}
		d.Indexes = append(d.Indexes, idx)
	}
	return nil
}

func setCount(txn *badger.Txn, key string, n float64) error {
	if n < 0 || math.IsNaN(n) {
		return errors.Newf("invalid count %v for %s", n, key)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(n))
	if err := txn.Set([]byte(key), buf[:]); err != nil {
		return errors.Wrapf(err, "failed to write %s", key)
	}
	return nil
}

func decodeCount(key string, value []byte, out *float64) error {
	if len(value) != 8 {
		return errors.Newf("corrupt count at %s: %d bytes", key, len(value))
	}
	*out = math.Float64frombits(binary.BigEndian.Uint64(value))
	return nil
}

func putIndex(txn *badger.Txn, idx IndexDescriptor) error {
	value, err := json.Marshal(idx)
	if err != nil {
		return errors.Wrapf(err, "failed to encode index %s", idx.Name)
	}
	if err := txn.Set([]byte(prefixIndex+idx.Name), value); err != nil {
		return errors.Wrapf(err, "failed to write index %s", idx.Name)
	}
	return nil
}

func deletePrefix(txn *badger.Txn, prefix string) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return errors.Wrapf(err, "failed to delete %s", k)
		}
	}
	return nil
}
