// package binlog keeps the history of finished transfers in a bolt database.
package binlog

import (
	"encoding/binary"
	"errors"
	"github.com/boltdb/bolt"
	"github.com/hetianyi/gotftp/common"
	"github.com/hetianyi/gox/file"
	"github.com/hetianyi/gox/logger"
	"github.com/hetianyi/gox/uuid"
	json "github.com/json-iterator/go"
	"path/filepath"
	"sync"
	"time"
)

var (
	transferBucket = []byte("transfers")
	indexBucket    = []byte("transfer_index")
	ClosedErr      = errors.New("journal closed")
)

// Journal is an append only log of TransferRecord, newest last.
type Journal struct {
	lock *sync.Mutex
	db   *bolt.DB
}

// Open opens or creates the journal file at path.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if !file.Exists(dir) {
		if err := file.CreateDirs(dir); err != nil {
			return nil, err
		}
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second * 3})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(transferBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("transfer journal opened: ", path)
	return &Journal{
		lock: new(sync.Mutex),
		db:   db,
	}, nil
}

// Write appends a record. A record without id is given one.
func (j *Journal) Write(record *common.TransferRecord) error {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.db == nil {
		return ClosedErr
	}
	if record.Id == "" {
		record.Id = uuid.UUID()
	}
	bs, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(transferBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		// big endian keeps the cursor in insertion order
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := b.Put(key, bs); err != nil {
			return err
		}
		return tx.Bucket(indexBucket).Put([]byte(record.Id), key)
	})
}

// List returns at most limit records, newest first.
func (j *Journal) List(limit int) ([]*common.TransferRecord, error) {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.db == nil {
		return nil, ClosedErr
	}
	ret := make([]*common.TransferRecord, 0)
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(transferBucket).Cursor()
		for k, v := c.Last(); k != nil && len(ret) < limit; k, v = c.Prev() {
			r := &common.TransferRecord{}
			if err := json.Unmarshal(v, r); err != nil {
				return err
			}
			ret = append(ret, r)
		}
		return nil
	})
	return ret, err
}

// Get returns the record with the given id, or nil if there is none.
func (j *Journal) Get(id string) (*common.TransferRecord, error) {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.db == nil {
		return nil, ClosedErr
	}
	var ret *common.TransferRecord
	err := j.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(indexBucket).Get([]byte(id))
		if key == nil {
			return nil
		}
		v := tx.Bucket(transferBucket).Get(key)
		if v == nil {
			return nil
		}
		ret = &common.TransferRecord{}
		return json.Unmarshal(v, ret)
	})
	return ret, err
}

// Len returns the number of records.
func (j *Journal) Len() int {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.db == nil {
		return 0
	}
	n := 0
	j.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(transferBucket).Stats().KeyN
		return nil
	})
	return n
}

func (j *Journal) Close() error {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}
