package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/Tinuki562/junior.guru/internal/components/telemetry"

	"github.com/dgraph-io/badger/v4"
)

const (
	report_disk_get   = "disk.get"
	report_disk_set   = "disk.set"
	report_disk_evict = "disk.evict"

	entryPrefix = "entry/"
	tagPrefix   = "tag/"
)

// Disk is a Store persisted in a badger database.
//
// Entries live under `entry/<key>` and carry their tag, every entry also has
// an index key `tag/<tag>/<key>` so that eviction does not need a full scan.
type Disk struct {
	db  *badger.DB
	tel telemetry.API
}

// OpenDisk opens (or creates) the cache in directory `dir`, an empty `dir`
// opens an in-memory database.
func OpenDisk(dir string, tel telemetry.API) (*Disk, error) {
	tel = telemetry.NewScopedAPI("cache", tel)

	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{tel: tel})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return &Disk{db: db, tel: tel}, nil
}

func (d *Disk) Close() error {
	return d.db.Close()
}

func entryKey(key string) []byte {
	return []byte(entryPrefix + key)
}

func indexKey(tag, key string) []byte {
	return []byte(tagPrefix + tag + "/" + key)
}

func encodeEntry(tag string, value []byte) []byte {
	out := binary.AppendUvarint(nil, uint64(len(tag)))
	out = append(out, tag...)
	return append(out, value...)
}

func decodeEntry(serialized []byte) (tag string, value []byte, err error) {
	length, n := binary.Uvarint(serialized)
	if n <= 0 || uint64(len(serialized)-n) < length {
		return "", nil, fmt.Errorf("corrupted cache entry")
	}
	end := n + int(length)
	return string(serialized[n:end]), serialized[end:], nil
}

func (d *Disk) Get(key string) ([]byte, error) {
	var value []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(key))
		if err != nil {
			return err
		}
		serialized, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		_, value, err = decodeEntry(serialized)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		d.tel.ReportBroken(report_disk_get, err, key)
		return nil, err
	}
	return value, nil
}

func (d *Disk) Set(key, tag string, value []byte) error {
	if strings.Contains(tag, "/") {
		return fmt.Errorf("cache tag must not contain '/': %q", tag)
	}

	err := d.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(key))
		switch {
		case err == nil:
			serialized, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			previousTag, _, err := decodeEntry(serialized)
			if err != nil {
				return err
			}
			if previousTag != tag {
				err = txn.Delete(indexKey(previousTag, key))
				if err != nil {
					return err
				}
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		err = txn.Set(entryKey(key), encodeEntry(tag, value))
		if err != nil {
			return err
		}
		return txn.Set(indexKey(tag, key), nil)
	})
	if err != nil {
		d.tel.ReportBroken(report_disk_set, err, key, tag)
		return err
	}
	return nil
}

func (d *Disk) Evict(tag string) (int, error) {
	prefix := []byte(tagPrefix + tag + "/")

	var keys []string
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
		}
		return nil
	})
	if err != nil {
		d.tel.ReportBroken(report_disk_evict, err, tag)
		return 0, err
	}

	batch := d.db.NewWriteBatch()
	defer batch.Cancel()
	for _, key := range keys {
		err = batch.Delete(entryKey(key))
		if err != nil {
			d.tel.ReportBroken(report_disk_evict, err, tag)
			return 0, err
		}
		err = batch.Delete(indexKey(tag, key))
		if err != nil {
			d.tel.ReportBroken(report_disk_evict, err, tag)
			return 0, err
		}
	}
	err = batch.Flush()
	if err != nil {
		d.tel.ReportBroken(report_disk_evict, err, tag)
		return 0, err
	}

	d.tel.ReportCount(report_disk_evict, int64(len(keys)))
	return len(keys), nil
}

type badgerLogger struct {
	tel telemetry.API
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.tel.ReportBroken("badger", fmt.Errorf(strings.TrimSpace(format), args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.tel.ReportWarning("badger", fmt.Sprintf(strings.TrimSpace(format), args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.tel.ReportDebug(fmt.Sprintf("badger: "+strings.TrimSpace(format), args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.tel.ReportDebug(fmt.Sprintf("badger: "+strings.TrimSpace(format), args...))
}
