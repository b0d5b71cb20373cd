package config

import (
	"testing"
	"time"
)

func TestParseResource(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Resource
		wantErr bool
	}{
		{name: "contacts", input: "contacts", want: ResourceContacts},
		{name: "project types", input: "projectTypes", want: ResourceProjectTypes},
		{name: "wrong case", input: "Contacts", wantErr: true},
		{name: "unknown", input: "invoices", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResource(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseResource(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseResource(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDefaultCacheConfig(t *testing.T) {
	c := DefaultCacheConfig()

	if !c.Enabled {
		t.Error("default config should be enabled")
	}
	for _, r := range Resources() {
		if !c.IsEnabled(r) {
			t.Errorf("%s should be enabled by default", r)
		}
	}
	if got := c.TTL(ResourceProjectTypes); got != 30*time.Minute {
		t.Errorf("TTL(projectTypes) = %v, want 30m", got)
	}
	if got := c.TTL(ResourceContacts); got != 5*time.Minute {
		t.Errorf("TTL(contacts) = %v, want 5m", got)
	}
	if c.Debug.Log || c.Debug.LogCacheHits || c.Debug.LogCacheMisses {
		t.Errorf("debug flags should default to off, got %+v", c.Debug)
	}
}

func TestCacheConfig_IsEnabled(t *testing.T) {
	tests := []struct {
		name     string
		global   bool
		resource bool
		want     bool
	}{
		{"both on", true, true, true},
		{"global off", false, true, false},
		{"resource off", true, false, false},
		{"both off", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultCacheConfig()
			c.Enabled = tt.global
			c.Resources[ResourceLeads] = ResourceConfig{Enabled: tt.resource, TTL: time.Minute}

			if got := c.IsEnabled(ResourceLeads); got != tt.want {
				t.Errorf("IsEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheConfig_MissingResource(t *testing.T) {
	c := CacheConfig{Enabled: true}

	if c.IsEnabled(ResourceContacts) {
		t.Error("unset resource should be disabled")
	}
	if got := c.TTL(ResourceContacts); got != DefaultResourceTTL {
		t.Errorf("TTL() = %v, want %v", got, DefaultResourceTTL)
	}
}

func TestCacheConfig_CloneIsDeep(t *testing.T) {
	c := DefaultCacheConfig()
	clone := c.Clone()
	clone.Resources[ResourceContacts] = ResourceConfig{Enabled: false}

	if !c.Resources[ResourceContacts].Enabled {
		t.Error("modifying the clone changed the original")
	}
}

func TestCacheConfig_DisabledResources(t *testing.T) {
	c := DefaultCacheConfig()
	c.Resources[ResourceLeads] = ResourceConfig{Enabled: false}

	got := c.DisabledResources()
	if len(got) != 1 || got[0] != ResourceLeads {
		t.Errorf("DisabledResources() = %v, want [leads]", got)
	}

	c.Enabled = false
	if got := c.DisabledResources(); len(got) != len(Resources()) {
		t.Errorf("DisabledResources() with global off = %v, want all", got)
	}
}

func TestCacheConfig_Apply(t *testing.T) {
	base := DefaultCacheConfig()

	t.Run("partial update", func(t *testing.T) {
		got, err := base.Apply(Patch{
			Resources: map[Resource]ResourcePatch{
				ResourceLeads: {TTL: Duration(time.Minute)},
			},
			Debug: &DebugPatch{LogCacheHits: Bool(true)},
		})
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if got.TTL(ResourceLeads) != time.Minute {
			t.Errorf("TTL(leads) = %v, want 1m", got.TTL(ResourceLeads))
		}
		if !got.IsEnabled(ResourceLeads) {
			t.Error("leads enabled flag should be untouched")
		}
		if !got.Debug.LogCacheHits || got.Debug.LogCacheMisses {
			t.Errorf("Debug = %+v, want only LogCacheHits", got.Debug)
		}
		if base.TTL(ResourceLeads) != 5*time.Minute {
			t.Error("Apply must not modify the receiver")
		}
	})

	t.Run("unknown resource", func(t *testing.T) {
		_, err := base.Apply(Patch{Resources: map[Resource]ResourcePatch{"invoices": {Enabled: Bool(true)}}})
		if err == nil {
			t.Error("Apply() with unknown resource should fail")
		}
	})

	t.Run("negative ttl", func(t *testing.T) {
		_, err := base.Apply(Patch{Resources: map[Resource]ResourcePatch{ResourceLeads: {TTL: Duration(-time.Second)}}})
		if err == nil {
			t.Error("Apply() with negative ttl should fail")
		}
	})
}

func TestParsePersistedConfig(t *testing.T) {
	defaults := DefaultCacheConfig()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, c CacheConfig)
	}{
		{
			name:    "empty",
			raw:     "",
			wantErr: true,
			check: func(t *testing.T, c CacheConfig) {
				if !c.Enabled {
					t.Error("empty blob should yield defaults")
				}
			},
		},
		{
			name:    "malformed",
			raw:     "{not json",
			wantErr: true,
			check: func(t *testing.T, c CacheConfig) {
				if !c.Enabled || c.TTL(ResourceProjectTypes) != 30*time.Minute {
					t.Errorf("malformed blob should yield defaults, got %+v", c)
				}
			},
		},
		{
			name: "global off only",
			raw:  `{"enabled":false}`,
			check: func(t *testing.T, c CacheConfig) {
				if c.Enabled {
					t.Error("Enabled should be false")
				}
				if !c.Resources[ResourceContacts].Enabled {
					t.Error("resource flags should keep defaults")
				}
			},
		},
		{
			name: "resource ttl in milliseconds",
			raw:  `{"resources":{"leads":{"ttl":60000}}}`,
			check: func(t *testing.T, c CacheConfig) {
				if c.TTL(ResourceLeads) != time.Minute {
					t.Errorf("TTL(leads) = %v, want 1m", c.TTL(ResourceLeads))
				}
			},
		},
		{
			name: "non-positive ttl ignored",
			raw:  `{"resources":{"leads":{"ttl":0,"enabled":false}}}`,
			check: func(t *testing.T, c CacheConfig) {
				if c.TTL(ResourceLeads) != 5*time.Minute {
					t.Errorf("TTL(leads) = %v, want default", c.TTL(ResourceLeads))
				}
				if c.IsEnabled(ResourceLeads) {
					t.Error("leads should be disabled")
				}
			},
		},
		{
			name: "unknown resource ignored",
			raw:  `{"resources":{"invoices":{"enabled":true}}}`,
			check: func(t *testing.T, c CacheConfig) {
				if _, ok := c.Resources["invoices"]; ok {
					t.Error("unknown resource should not be added")
				}
			},
		},
		{
			name: "debug flags",
			raw:  `{"debug":{"logCacheMisses":true}}`,
			check: func(t *testing.T, c CacheConfig) {
				if !c.Debug.LogCacheMisses || c.Debug.LogCacheHits {
					t.Errorf("Debug = %+v", c.Debug)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePersistedConfig([]byte(tt.raw), defaults)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePersistedConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			tt.check(t, got)
		})
	}
}

func TestMarshalPersistedConfig_RoundTrip(t *testing.T) {
	c := DefaultCacheConfig()
	c.Enabled = false
	c.Resources[ResourceProjects] = ResourceConfig{Enabled: false, TTL: 90 * time.Second}
	c.Debug.Log = true

	data, err := MarshalPersistedConfig(c)
	if err != nil {
		t.Fatalf("MarshalPersistedConfig() error = %v", err)
	}

	got, err := ParsePersistedConfig(data, DefaultCacheConfig())
	if err != nil {
		t.Fatalf("ParsePersistedConfig() error = %v", err)
	}
	if got.Enabled || got.IsEnabled(ResourceProjects) {
		t.Errorf("got %+v, want global and projects disabled", got)
	}
	if got.TTL(ResourceProjects) != 90*time.Second {
		t.Errorf("TTL(projects) = %v, want 90s", got.TTL(ResourceProjects))
	}
	if !got.Debug.Log {
		t.Error("Debug.Log should survive the round trip")
	}
}

func TestParsePatch(t *testing.T) {
	p, err := ParsePatch([]byte(`{"enabled":false,"resources":{"leads":{"ttl":60000}},"debug":{"logCacheHits":true}}`))
	if err != nil {
		t.Fatalf("ParsePatch() error = %v", err)
	}

	got, err := DefaultCacheConfig().Apply(p)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got.Enabled {
		t.Error("Enabled should be false")
	}
	if got.TTL(ResourceLeads) != time.Minute {
		t.Errorf("TTL(leads) = %v, want 1m", got.TTL(ResourceLeads))
	}
	if !got.Resource(ResourceLeads).Enabled {
		t.Error("leads should stay enabled when the patch omits enabled")
	}
	if !got.Debug.LogCacheHits || got.Debug.LogCacheMisses {
		t.Errorf("Debug = %+v", got.Debug)
	}

	for _, raw := range []string{`{`, `{"resources":{"invoices":{}}}`, `{"resources":{"leads":{"ttl":-1}}}`} {
		if _, err := ParsePatch([]byte(raw)); err == nil {
			t.Errorf("ParsePatch(%s) should fail", raw)
		}
	}
}
