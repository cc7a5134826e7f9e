package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"typelift/internal/typegraph"
)

// Current schema version - increment when DiskPayload format changes.
const diskCacheSchemaVersion uint16 = 1

// DiskCache stores finished analysis results keyed by a digest of the
// input and run options, so unchanged modules skip re-solving.
// Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// Digest identifies one input + options combination.
type Digest [sha256.Size]byte

// DiskPayload is the serialised result of one module run.
type DiskPayload struct {
	Schema uint16

	Source string
	Path   string

	Entries  []CachedEntry
	Total    int
	Covered  int
	StatAll  int
	StatOpaq int
}

// CachedEntry is one dump line in the cache.
type CachedEntry struct {
	Scope string
	Name  string
	Types []string
}

// OpenDiskCache initialises a disk cache under the user cache dir.
func OpenDiskCache(app string) (*DiskCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// ResultDigest hashes the module text together with the options that
// shape the result.
func ResultDigest(src []byte, source, solver string) Digest {
	h := sha256.New()
	h.Write(src)
	h.Write([]byte{0})
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(solver))
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

func (c *DiskCache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "runs", hex.EncodeToString(key[:])+".mp")
}

// Put serialises and writes a payload, replacing atomically.
func (c *DiskCache) Put(key Digest, payload *DiskPayload) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads a payload. Returns false when the key is absent or the
// schema no longer matches.
func (c *DiskCache) Get(key Digest, out *DiskPayload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, err
	}
	if out.Schema != diskCacheSchemaVersion {
		return false, nil
	}
	return true, nil
}

// DropAll invalidates the cache, useful after format changes.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "runs"))
}

// payloadEntries converts graph entries for serialisation.
func payloadEntries(entries []typegraph.Entry) []CachedEntry {
	out := make([]CachedEntry, len(entries))
	for i, e := range entries {
		out[i] = CachedEntry{Scope: e.Scope, Name: e.Name, Types: e.Types}
	}
	return out
}

// entriesFromPayload converts back for reporting.
func entriesFromPayload(cached []CachedEntry) []typegraph.Entry {
	out := make([]typegraph.Entry, len(cached))
	for i, e := range cached {
		out[i] = typegraph.Entry{Scope: e.Scope, Name: e.Name, Types: e.Types}
	}
	return out
}
