// Package storage keeps model artifacts and labeled training samples in a
// BoltDB file. Every trained artifact is stored as an immutable version;
// one version per family is marked active and served by the engine.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"risk-engine/internal/artifact"
	"risk-engine/internal/common"
)

// DBFile is the database file created inside the data path.
const DBFile = "risk-engine.db"

const (
	artifactsBucket = "artifacts" // version id -> artifact JSON
	versionsBucket  = "versions"  // family_seq -> Version JSON, in insertion order
	activeBucket    = "active"    // family -> version id
	samplesBucket   = "samples"   // one nested bucket per family
)

var (
	// ErrNoActiveVersion is returned when a family has never been activated.
	ErrNoActiveVersion = errors.New("no active model version")
	// ErrVersionNotFound is returned for an unknown version id.
	ErrVersionNotFound = errors.New("model version not found")
)

// Version describes one stored artifact.
type Version struct {
	Version   string             `json:"version"`
	Family    string             `json:"family"`
	CreatedAt time.Time          `json:"created_at"`
	TrainedAt time.Time          `json:"trained_at"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Active    bool               `json:"active"`
}

// Store persists artifacts and samples using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens or creates the database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, DBFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{artifactsBucket, versionsBucket, activeBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		samples, err := tx.CreateBucketIfNotExists([]byte(samplesBucket))
		if err != nil {
			return fmt.Errorf("create samples bucket: %w", err)
		}
		for _, family := range []string{common.FamilyFraud, common.FamilyCredit} {
			if _, err := samples.CreateBucketIfNotExists([]byte(family)); err != nil {
				return fmt.Errorf("create %s samples bucket: %w", family, err)
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

// Close closes the database. Closing twice is safe.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveArtifact validates a and stores it as a new inactive version.
func (s *Store) SaveArtifact(a *artifact.Artifact) (Version, error) {
	if err := a.Validate(); err != nil {
		return Version{}, err
	}
	data, err := artifact.Encode(a)
	if err != nil {
		return Version{}, err
	}
	v := Version{
		Version:   a.Version,
		Family:    a.Family,
		CreatedAt: time.Now().UTC(),
		TrainedAt: a.Metadata.TrainedAt,
		Metrics:   a.Metadata.Test,
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		arts := tx.Bucket([]byte(artifactsBucket))
		if arts.Get([]byte(a.Version)) != nil {
			return fmt.Errorf("version %s already stored", a.Version)
		}
		if err := arts.Put([]byte(a.Version), data); err != nil {
			return err
		}

		versions := tx.Bucket([]byte(versionsBucket))
		seq, err := versions.NextSequence()
		if err != nil {
			return err
		}
		meta, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal version: %w", err)
		}
		return versions.Put(versionKey(a.Family, seq), meta)
	})
	if err != nil {
		return Version{}, fmt.Errorf("store artifact: %w", err)
	}

	log.Info().Str("family", a.Family).Str("version", a.Version).Msg("Model version stored")
	return v, nil
}

func versionKey(family string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s_%020d", family, seq))
}

// Activate marks version as the one served for its family.
func (s *Store) Activate(family, version string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		v, err := findVersion(tx, family, version)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(activeBucket)).Put([]byte(family), []byte(v.Version))
	})
	if err != nil {
		return err
	}
	log.Info().Str("family", family).Str("version", version).Msg("Model version activated")
	return nil
}

// Rollback activates the version stored just before the active one and
// returns it.
func (s *Store) Rollback(family string) (Version, error) {
	var prev Version
	err := s.db.Update(func(tx *bbolt.Tx) error {
		active := tx.Bucket([]byte(activeBucket)).Get([]byte(family))
		if active == nil {
			return ErrNoActiveVersion
		}
		versions, err := listVersions(tx, family)
		if err != nil {
			return err
		}
		// versions are oldest first
		idx := -1
		for i, v := range versions {
			if v.Version == string(active) {
				idx = i
				break
			}
		}
		if idx <= 0 {
			return fmt.Errorf("no previous %s version available for rollback", family)
		}
		prev = versions[idx-1]
		return tx.Bucket([]byte(activeBucket)).Put([]byte(family), []byte(prev.Version))
	})
	if err != nil {
		return Version{}, err
	}
	prev.Active = true
	log.Warn().Str("family", family).Str("version", prev.Version).Msg("Model version rolled back")
	return prev, nil
}

// Active returns the active artifact of family. It satisfies the engine
// registry's source contract.
func (s *Store) Active(ctx context.Context, family string) (*artifact.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		version := tx.Bucket([]byte(activeBucket)).Get([]byte(family))
		if version == nil {
			return fmt.Errorf("%s: %w", family, ErrNoActiveVersion)
		}
		raw := tx.Bucket([]byte(artifactsBucket)).Get(version)
		if raw == nil {
			return fmt.Errorf("%s %s: %w", family, version, ErrVersionNotFound)
		}
		data = append([]byte(nil), raw...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return artifact.Decode(data)
}

// Get returns a stored artifact by version id.
func (s *Store) Get(version string) (*artifact.Artifact, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(artifactsBucket)).Get([]byte(version))
		if raw == nil {
			return fmt.Errorf("%s: %w", version, ErrVersionNotFound)
		}
		data = append([]byte(nil), raw...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return artifact.Decode(data)
}

// Versions lists the stored versions of family, newest first.
func (s *Store) Versions(family string) ([]Version, error) {
	var out []Version
	err := s.db.View(func(tx *bbolt.Tx) error {
		versions, err := listVersions(tx, family)
		if err != nil {
			return err
		}
		active := string(tx.Bucket([]byte(activeBucket)).Get([]byte(family)))
		for i := len(versions) - 1; i >= 0; i-- {
			v := versions[i]
			v.Active = v.Version == active
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

// listVersions returns the versions of family in insertion order.
func listVersions(tx *bbolt.Tx, family string) ([]Version, error) {
	var out []Version
	c := tx.Bucket([]byte(versionsBucket)).Cursor()
	prefix := []byte(family + "_")
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var ver Version
		if err := json.Unmarshal(v, &ver); err != nil {
			return nil, fmt.Errorf("decode version %s: %w", k, err)
		}
		out = append(out, ver)
	}
	return out, nil
}

func findVersion(tx *bbolt.Tx, family, version string) (Version, error) {
	versions, err := listVersions(tx, family)
	if err != nil {
		return Version{}, err
	}
	for _, v := range versions {
		if v.Version == version {
			return v, nil
		}
	}
	return Version{}, fmt.Errorf("%s %s: %w", family, version, ErrVersionNotFound)
}
