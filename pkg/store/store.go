// Package store keeps a named library of bytecode images in a bolt
// database. Every image is stored with its blake3 digest, which is checked
// again on read.
package store

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
	bolt "go.etcd.io/bbolt"

	"bumbam/pkg/vm"
)

// MaxImageBytes is the largest image the library accepts (1.44MB).
const MaxImageBytes = 1474560

// validName is the regex for sanitizing image names.
var validName = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]{0,63}$`)

var (
	ErrNotFound    = errors.New("image not found")
	ErrInvalidName = errors.New("invalid image name")
	ErrTooLarge    = errors.New("image exceeds size limit")
	ErrCorrupt     = errors.New("image digest mismatch")
)

var (
	bucketImages = []byte("images")
	bucketMeta   = []byte("meta")
)

// Meta describes one stored image.
type Meta struct {
	Name     string
	Size     int
	Digest   [32]byte
	Created  time.Time
	Modified time.Time
}

// DigestString renders the digest in base58.
func (m Meta) DigestString() string {
	return base58.Encode(m.Digest[:])
}

// Store is safe for concurrent use; bolt serialises writers.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a library at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketImages, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.db.Path()
}

// Put stores image under name, replacing any previous image of that name.
// Only well-formed images are accepted.
func (s *Store) Put(name string, image []byte) (Meta, error) {
	if !validName.MatchString(name) {
		return Meta{}, ErrInvalidName
	}
	if len(image) > MaxImageBytes {
		return Meta{}, ErrTooLarge
	}
	if err := vm.VerifyHeader(image); err != nil {
		return Meta{}, fmt.Errorf("put %q: %w", name, err)
	}

	now := time.Now()
	meta := Meta{
		Name:     name,
		Size:     len(image),
		Digest:   blake3.Sum256(image),
		Created:  now,
		Modified: now,
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		metaBucket := tx.Bucket(bucketMeta)
		if old := metaBucket.Get([]byte(name)); old != nil {
			prev, err := decodeMeta(old)
			if err != nil {
				return err
			}
			meta.Created = prev.Created
		}

		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(&meta); err != nil {
			return fmt.Errorf("encode meta: %w", err)
		}
		if err := metaBucket.Put([]byte(name), buf.Bytes()); err != nil {
			return err
		}
		return tx.Bucket(bucketImages).Put([]byte(name), image)
	})
	if err != nil {
		return Meta{}, err
	}
	return meta, nil
}

// Get returns a copy of the image stored under name.
func (s *Store) Get(name string) ([]byte, error) {
	if !validName.MatchString(name) {
		return nil, ErrInvalidName
	}

	var image []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketImages).Get([]byte(name))
		rawMeta := tx.Bucket(bucketMeta).Get([]byte(name))
		if raw == nil || rawMeta == nil {
			return ErrNotFound
		}
		meta, err := decodeMeta(rawMeta)
		if err != nil {
			return err
		}
		if blake3.Sum256(raw) != meta.Digest {
			return fmt.Errorf("get %q: %w", name, ErrCorrupt)
		}
		// bolt memory is only valid inside the transaction.
		image = append([]byte(nil), raw...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return image, nil
}

// Meta returns the metadata of the image stored under name.
func (s *Store) Meta(name string) (Meta, error) {
	if !validName.MatchString(name) {
		return Meta{}, ErrInvalidName
	}

	var meta Meta
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get([]byte(name))
		if raw == nil {
			return ErrNotFound
		}
		var err error
		meta, err = decodeMeta(raw)
		return err
	})
	return meta, err
}

// List returns the metadata of every stored image, sorted by name.
func (s *Store) List() ([]Meta, error) {
	var out []Meta
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).ForEach(func(_, v []byte) error {
			meta, err := decodeMeta(v)
			if err != nil {
				return err
			}
			out = append(out, meta)
			return nil
		})
	})
	return out, err
}

// Delete removes the image stored under name.
func (s *Store) Delete(name string) error {
	if !validName.MatchString(name) {
		return ErrInvalidName
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		metaBucket := tx.Bucket(bucketMeta)
		if metaBucket.Get([]byte(name)) == nil {
			return ErrNotFound
		}
		if err := metaBucket.Delete([]byte(name)); err != nil {
			return err
		}
		return tx.Bucket(bucketImages).Delete([]byte(name))
	})
}

// Digest returns the base58 blake3 digest of b, as shown in listings.
func Digest(b []byte) string {
	sum := blake3.Sum256(b)
	return base58.Encode(sum[:])
}

func decodeMeta(b []byte) (Meta, error) {
	var meta Meta
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&meta); err != nil {
		return Meta{}, fmt.Errorf("decode meta: %w", err)
	}
	return meta, nil
}
