// Package pump implements the three-tier parameter-table load policy
// (spec §4.G): try the on-disk cache first, fall back to a live discovery
// handshake, and fall back again to the embedded reference table if the
// device is unreachable. "pump" names the component that primes the
// parameter table the rest of the CLI reads from, in the teacher's
// noun-as-subsystem-name convention (hub, cnl, transport).
package pump

import (
	"context"
	"fmt"

	"github.com/kstaniek/buderus-wps/internal/cache"
	"github.com/kstaniek/buderus-wps/internal/discovery"
	"github.com/kstaniek/buderus-wps/internal/fallback"
	"github.com/kstaniek/buderus-wps/internal/logging"
	"github.com/kstaniek/buderus-wps/internal/param"
)

// Source records which tier ultimately supplied the parameter table.
type Source string

const (
	SourceCache     Source = "cache"
	SourceDiscovery Source = "discovery"
	SourceEmbedded  Source = "embedded"
)

// Table is a loaded parameter table plus indexes for name/index lookup
// and the provenance of how it was obtained.
type Table struct {
	Source     Source
	Parameters []param.Parameter
	byIndex    map[int]param.Parameter
	byName     map[string]param.Parameter
}

func build(source Source, params []param.Parameter) Table {
	t := Table{Source: source, Parameters: params,
		byIndex: make(map[int]param.Parameter, len(params)),
		byName:  make(map[string]param.Parameter, len(params)),
	}
	for _, p := range params {
		t.byIndex[p.Index] = p
		t.byName[normalizeName(p.Name)] = p
	}
	return t
}

func normalizeName(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// ByIndex returns the parameter at index, if present.
func (t Table) ByIndex(index int) (param.Parameter, bool) {
	p, ok := t.byIndex[index]
	return p, ok
}

// ByName returns the parameter with the given name (case-insensitive).
func (t Table) ByName(name string) (param.Parameter, bool) {
	p, ok := t.byName[normalizeName(name)]
	return p, ok
}

// Link is the minimal transport discovery.Run needs.
type Link = discovery.Link

// Load applies the three-tier policy: a valid cache hit short-circuits
// discovery entirely; a cache miss or discovery failure falls through
// in order. A discovery run that parses less than its completeness
// threshold of the advertised count (discovery.ErrIncomplete) counts as a
// failure. link may be nil, in which case discovery is skipped and the
// policy goes straight from cache to the embedded table. forceDiscovery
// skips tier 1 unconditionally and invalidates any existing cache file
// (spec §4.F: "used on first connection or after force_discovery"; §4.G
// step 1: "If ... force_discovery is false and is_valid(), load from
// cache").
func Load(ctx context.Context, c *cache.Cache, link Link, forceDiscovery bool, opts ...discovery.Option) Table {
	if forceDiscovery {
		logging.L().Info("pump_force_discovery")
		c.Invalidate()
	} else if params, err := c.Load(); err == nil {
		logging.L().Info("pump_source", "source", SourceCache)
		return build(SourceCache, params)
	}

	if link != nil {
		res, err := discovery.Run(ctx, link, opts...)
		if err == nil {
			if res.Parsed < res.Advertised {
				logging.L().Warn("pump_discovery_partial", "parsed", res.Parsed, "advertised", res.Advertised)
			}
			if saveErr := c.Save(res.Parameters, "", ""); saveErr != nil {
				logging.L().Warn("pump_cache_save_failed", "error", saveErr)
			}
			logging.L().Info("pump_source", "source", SourceDiscovery)
			return build(SourceDiscovery, res.Parameters)
		}
		logging.L().Warn("pump_discovery_failed", "error", err, "parsed", res.Parsed, "advertised", res.Advertised)
	}

	logging.L().Info("pump_source", "source", SourceEmbedded)
	return build(SourceEmbedded, fallback.Table)
}

// ErrNotFound is returned by Resolve when neither index nor name matches
// any entry in the loaded table.
type ErrNotFound struct{ Query string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("pump: parameter %q not found", e.Query) }

// Resolve looks a parameter up by name first, then by decimal index,
// matching the CLI's single positional "name-or-index" argument.
func (t Table) Resolve(query string) (param.Parameter, error) {
	if p, ok := t.ByName(query); ok {
		return p, nil
	}
	var idx int
	if _, err := fmt.Sscanf(query, "%d", &idx); err == nil {
		if p, ok := t.ByIndex(idx); ok {
			return p, nil
		}
	}
	return param.Parameter{}, &ErrNotFound{Query: query}
}
