package config

import "strings"

// Service wraps a loaded Config and exposes the dotted-path, section, and
// per-layer lookups that providers and domain managers use at construction
// time. It implements provider.ConfigService.
type Service struct {
	cfg *Config
}

// NewService wraps cfg for lookup. cfg must not be mutated concurrently
// with calls to Service's methods; config is reloaded by discarding the old
// Service and building a new one, not by mutating this one in place.
func NewService(cfg *Config) *Service {
	return &Service{cfg: cfg}
}

// GetSection resolves a dotted path (e.g. "providers.decision") against the
// raw config tree and returns the sub-table found there, or nil if any
// segment is missing or not itself a table.
func (s *Service) GetSection(dottedPath string) map[string]any {
	node := any(s.cfg.raw)
	for _, part := range strings.Split(dottedPath, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node, ok = m[part]
		if !ok {
			return nil
		}
	}
	m, _ := node.(map[string]any)
	return m
}

// Get resolves section as a dotted path, then looks up key within it,
// returning def if the section or key is absent.
func (s *Service) Get(section, key string, def any) any {
	m := s.GetSection(section)
	if m == nil {
		return def
	}
	v, ok := m[key]
	if !ok {
		return def
	}
	return v
}

// GetPipelineConfig returns the sub-table for pipelines.<name>, or an empty
// map if none is configured — pipelines are optional and default-enabled.
func (s *Service) GetPipelineConfig(name string) map[string]any {
	m := s.GetSection("pipelines." + name)
	if m == nil {
		return map[string]any{}
	}
	return m
}

// GetAllProviderConfigs returns every provider sub-table configured under
// providers.<layer>.<name>, keyed by provider name. Keys that aren't
// themselves tables (such as providers.input.enabled) are skipped.
func (s *Service) GetAllProviderConfigs(layer string) map[string]map[string]any {
	result := make(map[string]map[string]any)
	section := s.GetSection("providers." + layer)
	for name, v := range section {
		if m, ok := v.(map[string]any); ok {
			result[name] = m
		}
	}
	return result
}

// IsProviderEnabled reports whether name is listed in the enabled set for
// layer. The decision layer instead uses a single active_provider key, so
// for layer=="decision" this checks equality against that key.
func (s *Service) IsProviderEnabled(name, layer string) bool {
	section := s.GetSection("providers." + layer)
	if section == nil {
		return false
	}
	if layer == "decision" {
		active, _ := section["active_provider"].(string)
		return active == name
	}
	key := "enabled_" + layer + "s"
	list, _ := section[key].([]any)
	for _, v := range list {
		if str, ok := v.(string); ok && str == name {
			return true
		}
	}
	return false
}
