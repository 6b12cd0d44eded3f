/*
Copyright (C) 2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package cache stores compiled assembly text keyed by a source-content
// hash so `cmd/ilish compile -f` can skip recompiling files it has
// already seen. Every entry is lz4-compressed before it hits a backend,
// mirroring the segment-log layout storage.S3Storage.flushLocked uses
// for its own blobs. Backends are interchangeable: a local-disk one for
// single-machine builds, an S3 one (modeled directly on
// storage.S3Storage) for a shared build cache across machines.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"
	"github.com/samber/lo"
)

// Key identifies one cache entry: the sha256 of the source text plus
// the heap/root-stack parameters that affect generated code, so a
// recompile with different -heap-size flags never returns stale
// assembly.
type Key struct {
	SourceHash string
	HeapSize   uint64
	RootStack  uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%s-%x-%x", k.SourceHash, k.HeapSize, k.RootStack)
}

// NewKey hashes source text and the size parameters into a Key.
func NewKey(source string, heapSize, rootStack uint64) Key {
	sum := sha256.Sum256([]byte(source))
	return Key{SourceHash: hex.EncodeToString(sum[:]), HeapSize: heapSize, RootStack: rootStack}
}

// Entry is one manifest record: the build id assigned when the entry
// was written, and when it was last read (used by the in-memory
// eviction index; SaveManifest persists Key and LastUsedAt only).
type Entry struct {
	BuildID    string
	Key        string
	WrittenAt  time.Time
	LastUsedAt time.Time
	Size       int
}

// Backend is the storage contract a cache implementation must satisfy:
// content-addressed blob get/put, nothing more. Modeled on
// storage.PersistenceEngine's column read/write pair, narrowed to a
// flat key-value shape since a build cache has no schema to track.
type Backend interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, data []byte) error
}

// Cache wraps a Backend with lz4 compression and an in-memory
// recency index (a google/btree ordered by LastUsedAt) used to decide
// which entries to evict first when EvictOldest is called; the index
// starts empty and is seeded by LoadManifest, since backends themselves
// are not required to support range scans.
type Cache struct {
	backend Backend

	mu    sync.Mutex
	index *btree.BTreeG[recencyItem]
	byKey map[string]recencyItem
}

type recencyItem struct {
	lastUsed time.Time
	key      string
}

func recencyLess(a, b recencyItem) bool {
	if a.lastUsed.Equal(b.lastUsed) {
		return a.key < b.key
	}
	return a.lastUsed.Before(b.lastUsed)
}

func New(backend Backend) *Cache {
	return &Cache{
		backend: backend,
		index:   btree.NewG(32, recencyLess),
		byKey:   make(map[string]recencyItem),
	}
}

// Get returns previously cached assembly text for key, decompressing
// it and bumping its recency entry on a hit.
func (c *Cache) Get(key Key) (string, bool, error) {
	raw, ok, err := c.backend.Get(key.String())
	if err != nil || !ok {
		return "", false, err
	}
	text, err := decompress(raw)
	if err != nil {
		return "", false, err
	}
	c.touch(key.String())
	return text, true, nil
}

// Put compresses and stores asmText under key, assigning it a fresh
// build id (google/uuid) for the manifest entry.
func (c *Cache) Put(key Key, asmText string) (Entry, error) {
	compressed, err := compress(asmText)
	if err != nil {
		return Entry{}, err
	}
	if err := c.backend.Put(key.String(), compressed); err != nil {
		return Entry{}, err
	}
	e := Entry{
		BuildID:    uuid.NewString(),
		Key:        key.String(),
		WrittenAt:  time.Now(),
		LastUsedAt: time.Now(),
		Size:       len(compressed),
	}
	c.touch(key.String())
	return e, nil
}

func (c *Cache) touch(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.byKey[key]; ok {
		c.index.Delete(prev)
	}
	item := recencyItem{lastUsed: time.Now(), key: key}
	c.index.ReplaceOrInsert(item)
	c.byKey[key] = item
}

// EvictOldest removes up to n least-recently-used entries from the
// in-memory recency index. It does not delete the underlying backend
// blob (no Backend in this package exposes a Delete — eviction here
// only stops the index from recommending a warm entry that's actually
// gone cold, a local bookkeeping concern, not a storage one).
func (c *Cache) EvictOldest(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var evicted []string
	for i := 0; i < n; i++ {
		item, ok := c.index.Min()
		if !ok {
			break
		}
		c.index.Delete(item)
		delete(c.byKey, item.key)
		evicted = append(evicted, item.key)
	}
	return evicted
}

func compress(s string) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write([]byte(s)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(b []byte) (string, error) {
	r := lz4.NewReader(bytes.NewReader(b))
	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// LocalBackend stores one file per key under Dir, named by the key
// string plus a ".lz4" suffix.
type LocalBackend struct {
	Dir string
}

func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalBackend{Dir: dir}, nil
}

func (b *LocalBackend) path(key string) string {
	return filepath.Join(b.Dir, key+".lz4")
}

func (b *LocalBackend) Get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(b.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *LocalBackend) Put(key string, data []byte) error {
	return os.WriteFile(b.path(key), data, 0o644)
}

// S3Backend stores each entry as an object under Prefix in Bucket,
// grounded directly on storage.S3Storage's lazy-client, prefixed-key
// pattern (storage/persistence-s3.go), narrowed from a column/log
// store to a flat blob cache.
type S3Backend struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	Prefix          string
	ForcePathStyle  bool

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

func (s *S3Backend) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil
	}

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if s.Region != "" {
		opts = append(opts, config.WithRegion(s.Region))
	}
	if s.AccessKeyID != "" && s.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("cache: loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if s.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(s.Endpoint) })
	}
	if s.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	s.client = s3.NewFromConfig(cfg, s3Opts...)
	s.opened = true
	return nil
}

func (s *S3Backend) key(name string) string {
	if s.Prefix == "" {
		return name
	}
	return s.Prefix + "/" + name
}

func (s *S3Backend) Get(key string) ([]byte, bool, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}
	resp, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return nil, false, nil
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *S3Backend) Put(key string, data []byte) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(key)),
		Body:   bytes.NewReader(data),
	})
	return err
}

// SaveManifest snapshots the current recency index to path as JSON, so
// a later process can seed its index without re-touching every entry
// in the backend. S3 backends keep no manifest of their own; remote
// sharing is content-addressed and doesn't need one.
func (c *Cache) SaveManifest(path string) error {
	c.mu.Lock()
	byKey := lo.Assign(map[string]recencyItem{}, c.byKey)
	c.mu.Unlock()
	entries := lo.MapToSlice(byKey, func(key string, item recencyItem) Entry {
		return Entry{Key: key, LastUsedAt: item.lastUsed}
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].LastUsedAt.Before(entries[j].LastUsedAt) })
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// LoadManifest seeds the recency index from a prior SaveManifest. A
// missing file is not an error: a fresh cache directory has none yet.
func (c *Cache) LoadManifest(path string) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}
	for _, e := range entries {
		c.mu.Lock()
		item := recencyItem{lastUsed: e.LastUsedAt, key: e.Key}
		c.index.ReplaceOrInsert(item)
		c.byKey[e.Key] = item
		c.mu.Unlock()
	}
	return nil
}
