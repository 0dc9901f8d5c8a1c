// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/Masterminds/semver"
	"github.com/boltdb/bolt"
	"github.com/gofrs/flock"
	"github.com/jmank88/nuts"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"
)

// boltCache persists container data observed through the gateway, so later
// solves can run against cached version lists and dependency sets. Records
// live in a per-epoch bucket keyed by package identity; the cache directory
// carries an advisory lock for the lifetime of the open database.
type boltCache struct {
	db    *bolt.DB
	epoch []byte
	lock  *flock.Flock
	lg    *logrus.Logger

	mu   sync.Mutex
	recs map[PackageReference]*containerRecord
}

// containerRecord is the yaml-encoded form of one container's observed
// data. Requirement strings round-trip through ParseRequirement.
type containerRecord struct {
	Identity        string                 `yaml:"identity"`
	Name            string                 `yaml:"name,omitempty"`
	Local           bool                   `yaml:"local,omitempty"`
	Versions        []string               `yaml:"versions,omitempty"`
	Dependencies    map[string][]depRecord `yaml:"dependencies,omitempty"`
	RevisionDeps    map[string][]depRecord `yaml:"revisionDeps,omitempty"`
	UnversionedDeps []depRecord            `yaml:"unversionedDeps,omitempty"`
	HasUnversioned  bool                   `yaml:"hasUnversioned,omitempty"`
}

// cacheSchemaVersion names the bucket all records live in; bumping it
// orphans data written by incompatible older layouts.
const cacheSchemaVersion = 1

type depRecord struct {
	Identity    string `yaml:"identity"`
	Name        string `yaml:"name,omitempty"`
	Local       bool   `yaml:"local,omitempty"`
	Requirement string `yaml:"requirement"`
}

func newBoltCache(dir string, epoch int64, lg *logrus.Logger) (*boltCache, error) {
	fl := flock.New(filepath.Join(dir, "pubgrub.lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "locking cache directory %s", dir)
	}
	if !locked {
		return nil, errors.Errorf("cache directory %s is locked by another process", dir)
	}

	path := filepath.Join(dir, "pubgrub.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		fl.Unlock()
		return nil, errors.Wrapf(err, "opening cache database %s", path)
	}

	key := make(nuts.Key, nuts.KeyLen(uint64(epoch)))
	key.Put(uint64(epoch))

	c := &boltCache{
		db:    db,
		epoch: []byte(key),
		lock:  fl,
		lg:    lg,
		recs:  make(map[PackageReference]*containerRecord),
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(c.epoch)
		return err
	})
	if err != nil {
		db.Close()
		fl.Unlock()
		return nil, errors.Wrap(err, "creating cache epoch bucket")
	}
	return c, nil
}

func (c *boltCache) close() error {
	err := c.db.Close()
	if uerr := c.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}

// record returns the live record for ref, loading it from disk on first
// use.
func (c *boltCache) record(ref PackageReference) (*containerRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.recs[ref]; ok {
		return rec, true
	}

	var rec *containerRecord
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.epoch)
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(ref.Identity))
		if raw == nil {
			return nil
		}
		rec = new(containerRecord)
		return yaml.Unmarshal(raw, rec)
	})
	if err != nil {
		c.warn(ref, err, "reading cached container")
		return nil, false
	}
	if rec == nil {
		return nil, false
	}
	c.recs[ref] = rec
	return rec, true
}

// save writes the record for ref back to disk. Failures degrade the cache,
// never the solve.
func (c *boltCache) save(ref PackageReference, rec *containerRecord) {
	c.mu.Lock()
	c.recs[ref] = rec
	c.mu.Unlock()

	raw, err := yaml.Marshal(rec)
	if err != nil {
		c.warn(ref, err, "encoding cached container")
		return
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(c.epoch).Put([]byte(ref.Identity), raw)
	})
	if err != nil {
		c.warn(ref, err, "writing cached container")
	}
}

func (c *boltCache) warn(ref PackageReference, err error, msg string) {
	if c.lg != nil && c.lg.Level >= logrus.WarnLevel {
		c.lg.WithFields(logrus.Fields{
			"package": ref.String(),
			"error":   err,
		}).Warn(msg)
	}
}

// container materializes a read-only Container from the cached record for
// ref, if one exists.
func (c *boltCache) container(ref PackageReference) (Container, bool) {
	rec, ok := c.record(ref)
	if !ok {
		return nil, false
	}
	cc, err := newRecordContainer(ref, rec)
	if err != nil {
		c.warn(ref, err, "decoding cached container")
		return nil, false
	}
	return cc, true
}

// recordContainer serves container queries from a decoded cache record.
type recordContainer struct {
	ref      PackageReference
	versions []*semver.Version
	rec      *containerRecord
}

func newRecordContainer(ref PackageReference, rec *containerRecord) (*recordContainer, error) {
	vs := make([]*semver.Version, 0, len(rec.Versions))
	for _, s := range rec.Versions {
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, errors.Wrapf(err, "bad cached version %q", s)
		}
		vs = append(vs, v)
	}
	return &recordContainer{ref: ref, versions: vs, rec: rec}, nil
}

func (rc *recordContainer) Identifier() PackageReference {
	return rc.ref
}

func (rc *recordContainer) Versions(filter func(*semver.Version) bool) []*semver.Version {
	var out []*semver.Version
	for _, v := range rc.versions {
		if filter == nil || filter(v) {
			out = append(out, v)
		}
	}
	return out
}

func (rc *recordContainer) GetDependencies(at *semver.Version) ([]Constraint, error) {
	deps, ok := rc.rec.Dependencies[at.String()]
	if !ok {
		return nil, errors.Errorf("no cached dependencies for %s at %s", rc.ref, at)
	}
	return decodeDeps(deps)
}

func (rc *recordContainer) GetRevisionDependencies(at Revision) ([]Constraint, error) {
	deps, ok := rc.rec.RevisionDeps[string(at)]
	if !ok {
		return nil, errors.Errorf("no cached dependencies for %s at revision %s", rc.ref, at)
	}
	return decodeDeps(deps)
}

func (rc *recordContainer) GetUnversionedDependencies() ([]Constraint, error) {
	if !rc.rec.HasUnversioned {
		return nil, errors.Errorf("no cached unversioned dependencies for %s", rc.ref)
	}
	return decodeDeps(rc.rec.UnversionedDeps)
}

func (rc *recordContainer) GetUpdatedIdentifier(BoundVersion) (PackageReference, error) {
	return rc.ref, nil
}

func decodeDeps(deps []depRecord) ([]Constraint, error) {
	out := make([]Constraint, 0, len(deps))
	for _, d := range deps {
		req, err := ParseRequirement(d.Requirement)
		if err != nil {
			return nil, errors.Wrapf(err, "bad cached requirement for %s", d.Identity)
		}
		out = append(out, Constraint{
			Ref: PackageReference{Identity: d.Identity, Name: d.Name, Local: d.Local},
			Req: req,
		})
	}
	return out, nil
}

func encodeDeps(deps []Constraint) []depRecord {
	out := make([]depRecord, 0, len(deps))
	for _, d := range deps {
		out = append(out, depRecord{
			Identity:    d.Ref.Identity,
			Name:        d.Ref.Name,
			Local:       d.Ref.Local,
			Requirement: d.Req.String(),
		})
	}
	return out
}

// cachingContainer writes data read through the inner container back to the
// on-disk cache as it is observed.
type cachingContainer struct {
	inner Container
	cache *boltCache

	mu  sync.Mutex
	rec *containerRecord
}

func newCachingContainer(inner Container, cache *boltCache) *cachingContainer {
	ref := inner.Identifier()
	rec, ok := cache.record(ref)
	if !ok {
		rec = &containerRecord{
			Identity: ref.Identity,
			Name:     ref.Name,
			Local:    ref.Local,
		}
	}
	return &cachingContainer{inner: inner, cache: cache, rec: rec}
}

func (cc *cachingContainer) Identifier() PackageReference {
	return cc.inner.Identifier()
}

func (cc *cachingContainer) Versions(filter func(*semver.Version) bool) []*semver.Version {
	full := cc.inner.Versions(nil)

	cc.mu.Lock()
	cc.rec.Versions = cc.rec.Versions[:0]
	for _, v := range full {
		cc.rec.Versions = append(cc.rec.Versions, v.String())
	}
	cc.persist()
	cc.mu.Unlock()

	if filter == nil {
		return full
	}
	var out []*semver.Version
	for _, v := range full {
		if filter(v) {
			out = append(out, v)
		}
	}
	return out
}

func (cc *cachingContainer) GetDependencies(at *semver.Version) ([]Constraint, error) {
	deps, err := cc.inner.GetDependencies(at)
	if err != nil {
		return nil, err
	}
	cc.mu.Lock()
	if cc.rec.Dependencies == nil {
		cc.rec.Dependencies = make(map[string][]depRecord)
	}
	cc.rec.Dependencies[at.String()] = encodeDeps(deps)
	cc.persist()
	cc.mu.Unlock()
	return deps, nil
}

func (cc *cachingContainer) GetRevisionDependencies(at Revision) ([]Constraint, error) {
	deps, err := cc.inner.GetRevisionDependencies(at)
	if err != nil {
		return nil, err
	}
	cc.mu.Lock()
	if cc.rec.RevisionDeps == nil {
		cc.rec.RevisionDeps = make(map[string][]depRecord)
	}
	cc.rec.RevisionDeps[string(at)] = encodeDeps(deps)
	cc.persist()
	cc.mu.Unlock()
	return deps, nil
}

func (cc *cachingContainer) GetUnversionedDependencies() ([]Constraint, error) {
	deps, err := cc.inner.GetUnversionedDependencies()
	if err != nil {
		return nil, err
	}
	cc.mu.Lock()
	cc.rec.UnversionedDeps = encodeDeps(deps)
	cc.rec.HasUnversioned = true
	cc.persist()
	cc.mu.Unlock()
	return deps, nil
}

func (cc *cachingContainer) GetUpdatedIdentifier(at BoundVersion) (PackageReference, error) {
	return cc.inner.GetUpdatedIdentifier(at)
}

// persist must be called with cc.mu held.
func (cc *cachingContainer) persist() {
	cc.cache.save(cc.inner.Identifier(), cc.rec)
}
