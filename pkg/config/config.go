// Package config holds the cache preferences of the CRM client: a global
// switch, per-resource enable flags and TTLs, and debug logging flags.
//
// Preferences are owned by a Service instance, seeded from defaults,
// overridden by a persisted JSON blob at start-up and changed through
// explicit setters. Services are constructed and injected; there is no
// package-level state.
package config

import (
	"errors"
	"fmt"
	"time"
)

// DefaultResourceTTL applies to resources that do not set a TTL.
const DefaultResourceTTL = 5 * time.Minute

// Resource is a logical category of cached data.
type Resource string

// Known resources.
const (
	ResourceContacts     Resource = "contacts"
	ResourceLeads        Resource = "leads"
	ResourceProjects     Resource = "projects"
	ResourceProjectTypes Resource = "projectTypes"
)

// Resources lists every known resource in a stable order.
func Resources() []Resource {
	return []Resource{ResourceContacts, ResourceLeads, ResourceProjects, ResourceProjectTypes}
}

// ParseResource converts a name into a Resource.
func ParseResource(name string) (Resource, error) {
	for _, r := range Resources() {
		if string(r) == name {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown resource %q", name)
}

// Valid reports whether r is a known resource.
func (r Resource) Valid() bool {
	_, err := ParseResource(string(r))
	return err == nil
}

// ResourceConfig controls caching of one resource.
type ResourceConfig struct {
	Enabled bool
	TTL     time.Duration
}

// EffectiveTTL returns TTL, or DefaultResourceTTL when unset.
func (rc ResourceConfig) EffectiveTTL() time.Duration {
	if rc.TTL <= 0 {
		return DefaultResourceTTL
	}
	return rc.TTL
}

// DebugConfig toggles diagnostic logging.
type DebugConfig struct {
	Log            bool
	LogCacheHits   bool
	LogCacheMisses bool
}

// CacheConfig is the full set of cache preferences.
type CacheConfig struct {
	// Enabled is the master switch; when false nothing is cached.
	Enabled   bool
	Resources map[Resource]ResourceConfig
	Debug     DebugConfig
}

// DefaultCacheConfig returns the built-in preferences.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: true,
		Resources: map[Resource]ResourceConfig{
			ResourceContacts:     {Enabled: true, TTL: 5 * time.Minute},
			ResourceLeads:        {Enabled: true, TTL: 5 * time.Minute},
			ResourceProjects:     {Enabled: true, TTL: 5 * time.Minute},
			ResourceProjectTypes: {Enabled: true, TTL: 30 * time.Minute},
		},
	}
}

// Clone returns a deep copy of c.
func (c CacheConfig) Clone() CacheConfig {
	out := c
	out.Resources = make(map[Resource]ResourceConfig, len(c.Resources))
	for r, rc := range c.Resources {
		out.Resources[r] = rc
	}
	return out
}

// Resource returns the settings for r. Unknown or unset resources are
// disabled with the default TTL.
func (c CacheConfig) Resource(r Resource) ResourceConfig {
	rc, ok := c.Resources[r]
	if !ok {
		return ResourceConfig{TTL: DefaultResourceTTL}
	}
	return rc
}

// IsEnabled reports whether caching is effective for r: the global switch
// and the resource flag must both be on.
func (c CacheConfig) IsEnabled(r Resource) bool {
	return c.Enabled && c.Resource(r).Enabled
}

// TTL returns the effective TTL for r.
func (c CacheConfig) TTL(r Resource) time.Duration {
	return c.Resource(r).EffectiveTTL()
}

// DisabledResources returns resources that are not effectively cached.
func (c CacheConfig) DisabledResources() []Resource {
	var out []Resource
	for _, r := range Resources() {
		if !c.IsEnabled(r) {
			out = append(out, r)
		}
	}
	return out
}

// ErrInvalidPatch is returned by Apply for patches naming unknown
// resources or carrying negative TTLs.
var ErrInvalidPatch = errors.New("invalid config patch")

// Patch is a partial update of CacheConfig. Nil fields are left unchanged.
type Patch struct {
	Enabled   *bool
	Resources map[Resource]ResourcePatch
	Debug     *DebugPatch
}

// ResourcePatch is a partial update of ResourceConfig.
type ResourcePatch struct {
	Enabled *bool
	TTL     *time.Duration
}

// DebugPatch is a partial update of DebugConfig.
type DebugPatch struct {
	Log            *bool
	LogCacheHits   *bool
	LogCacheMisses *bool
}

// Apply returns a copy of c with p applied. Unknown resources are rejected.
func (c CacheConfig) Apply(p Patch) (CacheConfig, error) {
	out := c.Clone()

	if p.Enabled != nil {
		out.Enabled = *p.Enabled
	}

	for r, rp := range p.Resources {
		if !r.Valid() {
			return c, fmt.Errorf("%w: unknown resource %q", ErrInvalidPatch, r)
		}
		rc := out.Resource(r)
		if rp.Enabled != nil {
			rc.Enabled = *rp.Enabled
		}
		if rp.TTL != nil {
			if *rp.TTL < 0 {
				return c, fmt.Errorf("%w: negative ttl for %q", ErrInvalidPatch, r)
			}
			rc.TTL = *rp.TTL
		}
		out.Resources[r] = rc
	}

	if p.Debug != nil {
		if p.Debug.Log != nil {
			out.Debug.Log = *p.Debug.Log
		}
		if p.Debug.LogCacheHits != nil {
			out.Debug.LogCacheHits = *p.Debug.LogCacheHits
		}
		if p.Debug.LogCacheMisses != nil {
			out.Debug.LogCacheMisses = *p.Debug.LogCacheMisses
		}
	}

	return out, nil
}

// Bool returns a pointer to b, for building patches.
func Bool(b bool) *bool { return &b }

// Duration returns a pointer to d, for building patches.
func Duration(d time.Duration) *time.Duration { return &d }
