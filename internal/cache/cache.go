// Package cache implements the persistent on-disk parameter cache (spec
// §4.G tier 1): a JSON snapshot of a discovered parameter table with a
// SHA-256 checksum guarding against corruption, grounded on
// original_source/buderus_wps/cache.py's ParameterCache.
package cache

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kstaniek/buderus-wps/internal/metrics"
	"github.com/kstaniek/buderus-wps/internal/param"
)

// Version is the cache format version this build writes and accepts. A
// mismatch invalidates the cache rather than attempting migration.
const Version = "1.0.0"

// record is the on-disk shape of a single parameter row, field names
// matching the Python reference's dict keys for cross-tool diff-ability.
type record struct {
	Index  int    `json:"idx"`
	ExtID  string `json:"extid"`
	Min    int    `json:"min"`
	Max    int    `json:"max"`
	Format string `json:"format"`
	Read   int    `json:"read"`
	Text   string `json:"text"`
}

// document is the top-level cache file shape.
type document struct {
	Version      string    `json:"version"`
	Created      string    `json:"created"`
	DeviceID     string    `json:"device_id,omitempty"`
	Firmware     string    `json:"firmware,omitempty"`
	ElementCount int       `json:"element_count"`
	Checksum     string    `json:"checksum"`
	Parameters   []record  `json:"parameters"`
}

// ErrInvalid is returned by Load when the cache file is missing, has the
// wrong version, or fails checksum verification.
var ErrInvalid = errors.New("cache: invalid or missing cache")

// Cache manages one on-disk cache file.
type Cache struct {
	Path string
}

// New returns a Cache bound to path.
func New(path string) *Cache { return &Cache{Path: path} }

func toRecords(params []param.Parameter) []record {
	recs := make([]record, len(params))
	for i, p := range params {
		recs[i] = record{
			Index: p.Index, ExtID: p.ExtID, Min: p.Min, Max: p.Max,
			Format: string(p.Format), Read: p.Read, Text: p.Name,
		}
	}
	return recs
}

func toParams(recs []record) []param.Parameter {
	params := make([]param.Parameter, len(recs))
	for i, r := range recs {
		params[i] = param.Parameter{
			Index: r.Index, ExtID: r.ExtID, Min: r.Min, Max: r.Max,
			Format: param.Format(r.Format), Read: r.Read, Name: r.Text,
		}
	}
	return params
}

// checksum reproduces _compute_checksum: sort records by index, marshal
// with sorted object keys and no extra whitespace, then sha256 the result,
// prefixed "sha256:".
func checksum(recs []record) (string, error) {
	sorted := make([]record, len(recs))
	copy(sorted, recs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	// Go's encoding/json already emits object keys in a fixed (struct
	// field declaration) order and no insignificant whitespace, which is
	// deterministic across runs; to match Python's sort_keys=True
	// alphabetical ordering we marshal into a generic map per record.
	generic := make([]map[string]any, len(sorted))
	for i, r := range sorted {
		generic[i] = map[string]any{
			"idx": r.Index, "extid": r.ExtID, "min": r.Min, "max": r.Max,
			"format": r.Format, "read": r.Read, "text": r.Text,
		}
	}
	// encoding/json sorts map keys alphabetically when marshaling, which
	// matches Python's json.dumps(sort_keys=True).
	b, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return fmt.Sprintf("sha256:%x", sum), nil
}

// IsValid reports whether the cache file exists, parses, matches Version
// and passes checksum verification.
func (c *Cache) IsValid() bool {
	doc, err := c.readDocument()
	if err != nil {
		return false
	}
	if doc.Version != Version {
		return false
	}
	sum, err := checksum(doc.Parameters)
	if err != nil {
		return false
	}
	return sum == doc.Checksum
}

// Load returns the cached table if valid, else ErrInvalid.
func (c *Cache) Load() ([]param.Parameter, error) {
	if !c.IsValid() {
		metrics.IncCacheMiss()
		return nil, ErrInvalid
	}
	doc, err := c.readDocument()
	if err != nil {
		metrics.IncCacheMiss()
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	metrics.IncCacheHit()
	return toParams(doc.Parameters), nil
}

func (c *Cache) readDocument() (document, error) {
	b, err := os.ReadFile(c.Path)
	if err != nil {
		return document{}, err
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return document{}, err
	}
	return doc, nil
}

// Save writes params to the cache file, computing a fresh checksum.
// deviceID and firmware are optional metadata; pass "" to omit either.
func (c *Cache) Save(params []param.Parameter, deviceID, firmware string) error {
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("cache: mkdir: %w", err)
	}
	recs := toRecords(params)
	sum, err := checksum(recs)
	if err != nil {
		return fmt.Errorf("cache: checksum: %w", err)
	}
	doc := document{
		Version:      Version,
		Created:      time.Now().UTC().Format(time.RFC3339),
		DeviceID:     deviceID,
		Firmware:     firmware,
		ElementCount: len(params),
		Checksum:     sum,
		Parameters:   recs,
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}
	if err := os.WriteFile(c.Path, b, 0o644); err != nil {
		return fmt.Errorf("cache: write: %w", err)
	}
	return nil
}

// Invalidate removes the cache file. Every removal error, including a
// missing file, is ignored, matching the reference's
// ignore-errors-on-invalidate policy.
func (c *Cache) Invalidate() {
	_ = os.Remove(c.Path)
}
