package config

import (
	"encoding/json"
)

// Safe type assertion helpers prevent panics when reading a provider's or
// requester's free-form Config blob (types.ProviderConfig.Config /
// types.RequesterConfig.Config), which arrives as json.RawMessage precisely
// because each provider/requester defines its own settings shape that the
// platform-level Config type cannot know about ahead of time.

// DecodeExtra unmarshals a provider's or requester's raw Config blob into a
// map, returning an empty map (never nil, never an error) for an absent or
// empty blob so callers can chain straight into GetString/GetInt/etc.
// without a nil check.
func DecodeExtra(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// GetString safely extracts a string value from a config map
func GetString(cfg map[string]any, key string, defaultVal string) string {
	if val, ok := cfg[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultVal
}

// GetInt safely extracts an integer value from a config map
func GetInt(cfg map[string]any, key string, defaultVal int) int {
	if val, ok := cfg[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case int32:
			return int(v)
		case float64:
			return int(v)
		case float32:
			return int(v)
		}
	}
	return defaultVal
}

// GetFloat64 safely extracts a float64 value from a config map
func GetFloat64(cfg map[string]any, key string, defaultVal float64) float64 {
	if val, ok := cfg[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case float32:
			return float64(v)
		case int:
			return float64(v)
		case int64:
			return float64(v)
		case int32:
			return float64(v)
		}
	}
	return defaultVal
}

// GetBool safely extracts a boolean value from a config map
func GetBool(cfg map[string]any, key string, defaultVal bool) bool {
	if val, ok := cfg[key]; ok {
		if boolVal, ok := val.(bool); ok {
			return boolVal
		}
	}
	return defaultVal
}

// GetStringSlice safely extracts a string slice from a config map
func GetStringSlice(cfg map[string]any, key string, defaultVal []string) []string {
	if val, ok := cfg[key]; ok {
		if slice, ok := val.([]string); ok {
			return slice
		}
		// Try to convert []any to []string
		if interfaceSlice, ok := val.([]any); ok {
			result := make([]string, 0, len(interfaceSlice))
			for _, item := range interfaceSlice {
				if str, ok := item.(string); ok {
					result = append(result, str)
				}
			}
			if len(result) == len(interfaceSlice) {
				return result
			}
		}
	}
	return defaultVal
}

// GetProviderExtra looks up name in cfg.Providers and decodes its Config
// blob, returning an empty map if the provider is not configured at all —
// a provider reading its own optional settings should not have to
// special-case "not present in the config file" separately from "present
// with no extra settings".
func (c *Config) GetProviderExtra(name string) map[string]any {
	p, ok := c.Providers[name]
	if !ok {
		return map[string]any{}
	}
	return DecodeExtra(p.Config)
}

// GetRequesterExtra is GetProviderExtra's counterpart for cfg.Requesters.
func (c *Config) GetRequesterExtra(name string) map[string]any {
	r, ok := c.Requesters[name]
	if !ok {
		return map[string]any{}
	}
	return DecodeExtra(r.Config)
}

// GetNestedString safely extracts a nested string value from a config map
func GetNestedString(cfg map[string]any, keys []string, defaultVal string) string {
	current := cfg
	for i, key := range keys {
		val, ok := current[key]
		if !ok {
			return defaultVal
		}

		// If this is the last key, try to extract the string value
		if i == len(keys)-1 {
			if str, ok := val.(string); ok {
				return str
			}
			return defaultVal
		}

		// Otherwise, descend into the nested map
		nested, ok := val.(map[string]any)
		if !ok {
			return defaultVal
		}
		current = nested
	}
	return defaultVal
}

// GetNestedInt safely extracts a nested integer value from a config map
func GetNestedInt(cfg map[string]any, keys []string, defaultVal int) int {
	current := cfg
	for i, key := range keys {
		val, ok := current[key]
		if !ok {
			return defaultVal
		}

		// If this is the last key, try to extract the int value
		if i == len(keys)-1 {
			return GetInt(map[string]any{key: val}, key, defaultVal)
		}

		// Otherwise, descend into the nested map
		nested, ok := val.(map[string]any)
		if !ok {
			return defaultVal
		}
		current = nested
	}
	return defaultVal
}

// GetNestedBool safely extracts a nested boolean value from a config map
func GetNestedBool(cfg map[string]any, keys []string, defaultVal bool) bool {
	current := cfg
	for i, key := range keys {
		val, ok := current[key]
		if !ok {
			return defaultVal
		}

		// If this is the last key, try to extract the bool value
		if i == len(keys)-1 {
			if boolVal, ok := val.(bool); ok {
				return boolVal
			}
			return defaultVal
		}

		// Otherwise, descend into the nested map
		nested, ok := val.(map[string]any)
		if !ok {
			return defaultVal
		}
		current = nested
	}
	return defaultVal
}

// HasKey checks if a key exists in the config map
func HasKey(cfg map[string]any, key string) bool {
	_, ok := cfg[key]
	return ok
}

// HasNestedKey checks if a nested key path exists in the config map
func HasNestedKey(cfg map[string]any, keys []string) bool {
	current := cfg
	for i, key := range keys {
		val, ok := current[key]
		if !ok {
			return false
		}

		// If this is the last key, we found it
		if i == len(keys)-1 {
			return true
		}

		// Otherwise, descend into the nested map
		nested, ok := val.(map[string]any)
		if !ok {
			return false
		}
		current = nested
	}
	return true
}
