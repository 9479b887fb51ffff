// Package store keeps the last known festival catalog in bolt, used when the backend is unreachable
package store

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/dorominseok/festival-pj/app/models"
)

const (
	bucketFestivals = "festivals"
	bucketProducts  = "products"
	bucketMeta      = "meta"
	keySavedAt      = "saved_at"
)

// ErrNoSnapshot returned when nothing was saved yet
var ErrNoSnapshot = errors.New("no catalog snapshot")

// BoltStore keeps festival and product snapshots in a bolt file
type BoltStore struct {
	DB *bolt.DB
}

// NewBoltStore opens the catalog file, parent directories are made as needed.
// A file left by a previous run keeps serving its snapshot.
func NewBoltStore(dbFile string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbFile), 0700); err != nil {
		return nil, errors.Wrapf(err, "can't make directory for %s", dbFile)
	}
	db, err := bolt.Open(dbFile, 0600, &bolt.Options{Timeout: time.Second}) // nolint
	if err != nil {
		return nil, errors.Wrapf(err, "can't open catalog %s", dbFile)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "can't init meta bucket")
	}

	res := &BoltStore{DB: db}
	if _, savedAt, e := res.Festivals(); e == nil {
		log.Printf("[INFO] catalog %s, snapshot from %s", dbFile, savedAt.Format(time.RFC3339))
	} else {
		log.Printf("[INFO] catalog %s, no snapshot yet", dbFile)
	}
	return res, nil
}

// Close the catalog file
func (b *BoltStore) Close() error {
	return b.DB.Close()
}

// SaveFestivals replaces the snapshot with list, keeping up to max festivals in list order.
// max <= 0 keeps all of them.
func (b *BoltStore) SaveFestivals(list []models.Festival, max int) (saved int, err error) {
	if max > 0 && len(list) > max {
		list = list[:max]
	}

	err = b.DB.Update(func(tx *bolt.Tx) error {
		if e := tx.DeleteBucket([]byte(bucketFestivals)); e != nil && e != bolt.ErrBucketNotFound {
			return errors.Wrap(e, "can't drop festivals bucket")
		}
		bucket, e := tx.CreateBucket([]byte(bucketFestivals))
		if e != nil {
			return errors.Wrap(e, "can't create festivals bucket")
		}

		for i, f := range list {
			data, e := json.Marshal(&f)
			if e != nil {
				return errors.Wrapf(e, "can't marshal festival %d", f.ID)
			}
			if e = bucket.Put(itob(uint64(i)), data); e != nil {
				return errors.Wrapf(e, "can't put festival %d", f.ID)
			}
		}

		meta, e := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		if e != nil {
			return errors.Wrap(e, "can't create meta bucket")
		}
		ts := strconv.FormatInt(time.Now().UnixNano(), 10)
		return meta.Put([]byte(keySavedAt), []byte(ts))
	})
	if err != nil {
		return 0, err
	}

	log.Printf("[DEBUG] saved %d festivals to catalog snapshot", len(list))
	return len(list), nil
}

// Festivals returns the snapshot in the saved order and the time it was saved
func (b *BoltStore) Festivals() (res []models.Festival, savedAt time.Time, err error) {
	res = []models.Festival{}
	err = b.DB.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketFestivals))
		if bucket == nil {
			return ErrNoSnapshot
		}
		if meta := tx.Bucket([]byte(bucketMeta)); meta != nil {
			if v := meta.Get([]byte(keySavedAt)); v != nil {
				if ns, e := strconv.ParseInt(string(v), 10, 64); e == nil {
					savedAt = time.Unix(0, ns)
				}
			}
		}
		return bucket.ForEach(func(_, v []byte) error {
			f := models.Festival{}
			if e := json.Unmarshal(v, &f); e != nil {
				log.Printf("[WARN] failed to unmarshal festival, %v", e)
				return nil
			}
			res = append(res, f)
			return nil
		})
	})
	return res, savedAt, err
}

// SaveProducts stores products of the festival, replacing previous ones
func (b *BoltStore) SaveProducts(festivalID int64, products []models.Product) error {
	return b.DB.Update(func(tx *bolt.Tx) error {
		bucket, e := tx.CreateBucketIfNotExists([]byte(bucketProducts))
		if e != nil {
			return errors.Wrap(e, "can't create products bucket")
		}
		data, e := json.Marshal(products)
		if e != nil {
			return errors.Wrapf(e, "can't marshal products of festival %d", festivalID)
		}
		return bucket.Put(itob(uint64(festivalID)), data)
	})
}

// Products returns stored products of the festival, ErrNoSnapshot if none were saved
func (b *BoltStore) Products(festivalID int64) (res []models.Product, err error) {
	err = b.DB.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketProducts))
		if bucket == nil {
			return ErrNoSnapshot
		}
		v := bucket.Get(itob(uint64(festivalID)))
		if v == nil {
			return ErrNoSnapshot
		}
		return json.Unmarshal(v, &res)
	})
	return res, err
}

// RemoveProducts drops stored products of festivals not in keep, returns number removed
func (b *BoltStore) RemoveProducts(keep []int64) (removed int, err error) {
	keepSet := make(map[string]bool, len(keep))
	for _, id := range keep {
		keepSet[string(itob(uint64(id)))] = true
	}
	err = b.DB.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketProducts))
		if bucket == nil {
			return nil
		}
		var stale [][]byte
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if !keepSet[string(k)] {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if e := bucket.Delete(k); e != nil {
				return errors.Wrapf(e, "can't delete products %x", k)
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// itob returns an 8-byte big endian key, keeps bolt's byte order equal to numeric order
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
