package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyPersisted is returned by ParsePersistedConfig for an empty blob.
var ErrEmptyPersisted = errors.New("persisted config is empty")

// persistedConfig is the JSON shape written to the preference store.
// Pointer fields distinguish "missing" from "false"/zero.
type persistedConfig struct {
	Enabled   *bool                        `json:"enabled,omitempty"`
	Resources map[string]persistedResource `json:"resources,omitempty"`
	Debug     *persistedDebug              `json:"debug,omitempty"`
}

type persistedResource struct {
	Enabled *bool  `json:"enabled,omitempty"`
	TTL     *int64 `json:"ttl,omitempty"` // milliseconds
}

type persistedDebug struct {
	Log            *bool `json:"log,omitempty"`
	LogCacheHits   *bool `json:"logCacheHits,omitempty"`
	LogCacheMisses *bool `json:"logCacheMisses,omitempty"`
}

// ParsePersistedConfig decodes a persisted JSON blob on top of defaults.
//
// Missing fields keep their default value and unknown resources are
// ignored. A malformed blob returns an error and the defaults; callers are
// expected to continue with the returned config.
func ParsePersistedConfig(raw []byte, defaults CacheConfig) (CacheConfig, error) {
	out := defaults.Clone()
	if len(raw) == 0 {
		return out, ErrEmptyPersisted
	}

	var p persistedConfig
	if err := json.Unmarshal(raw, &p); err != nil {
		return out, fmt.Errorf("parse persisted config: %w", err)
	}

	if p.Enabled != nil {
		out.Enabled = *p.Enabled
	}

	for name, pr := range p.Resources {
		r, err := ParseResource(name)
		if err != nil {
			continue
		}
		rc := out.Resource(r)
		if pr.Enabled != nil {
			rc.Enabled = *pr.Enabled
		}
		if pr.TTL != nil && *pr.TTL > 0 {
			rc.TTL = time.Duration(*pr.TTL) * time.Millisecond
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

// MarshalPersistedConfig encodes c in the persisted JSON shape. TTLs are
// written in milliseconds.
func MarshalPersistedConfig(c CacheConfig) ([]byte, error) {
	p := persistedConfig{
		Enabled:   Bool(c.Enabled),
		Resources: make(map[string]persistedResource, len(c.Resources)),
		Debug: &persistedDebug{
			Log:            Bool(c.Debug.Log),
			LogCacheHits:   Bool(c.Debug.LogCacheHits),
			LogCacheMisses: Bool(c.Debug.LogCacheMisses),
		},
	}
	for r, rc := range c.Resources {
		ttl := rc.EffectiveTTL().Milliseconds()
		p.Resources[string(r)] = persistedResource{
			Enabled: Bool(rc.Enabled),
			TTL:     &ttl,
		}
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal persisted config: %w", err)
	}
	return data, nil
}

// ParsePatch decodes a partial update written in the persisted JSON shape.
// Unlike ParsePersistedConfig it is strict: malformed JSON, unknown
// resources and negative TTLs are errors.
func ParsePatch(raw []byte) (Patch, error) {
	var p persistedConfig
	if err := json.Unmarshal(raw, &p); err != nil {
		return Patch{}, fmt.Errorf("parse config patch: %w", err)
	}

	out := Patch{Enabled: p.Enabled}
	if len(p.Resources) > 0 {
		out.Resources = make(map[Resource]ResourcePatch, len(p.Resources))
	}
	for name, pr := range p.Resources {
		r, err := ParseResource(name)
		if err != nil {
			return Patch{}, fmt.Errorf("parse config patch: %w", err)
		}
		rp := ResourcePatch{Enabled: pr.Enabled}
		if pr.TTL != nil {
			if *pr.TTL < 0 {
				return Patch{}, fmt.Errorf("parse config patch: negative ttl for %q", name)
			}
			rp.TTL = Duration(time.Duration(*pr.TTL) * time.Millisecond)
		}
		out.Resources[r] = rp
	}
	if p.Debug != nil {
		out.Debug = &DebugPatch{
			Log:            p.Debug.Log,
			LogCacheHits:   p.Debug.LogCacheHits,
			LogCacheMisses: p.Debug.LogCacheMisses,
		}
	}
	return out, nil
}
