package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Setting is one leaf of the config tree addressed by its dotted path.
type Setting struct {
	Path  string
	Value any
}

// tree renders cfg as the generic JSON map the accessors walk.
func tree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByPath returns the value at a dotted path such as "bots.executor".
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := tree(cfg)
	if err != nil {
		return nil, err
	}
	var current any = m
	for _, key := range strings.Split(path, ".") {
		section, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: %q is not a section", path, key)
		}
		if current, ok = section[key]; !ok {
			return nil, fmt.Errorf("unknown config key: %s", path)
		}
	}
	return current, nil
}

// SetByPath assigns a raw string to an existing leaf. The string is converted
// to the type the leaf already has, so "1234" stays a string for a bot name
// and becomes a number for a port. Lists take comma-separated values.
func SetByPath(cfg *Config, path, raw string) error {
	m, err := tree(cfg)
	if err != nil {
		return err
	}
	parts := strings.Split(path, ".")
	section := m
	for _, key := range parts[:len(parts)-1] {
		next, ok := section[key].(map[string]any)
		if !ok {
			return fmt.Errorf("unknown config section: %s", key)
		}
		section = next
	}

	leaf := parts[len(parts)-1]
	old, ok := section[leaf]
	if !ok {
		return fmt.Errorf("unknown config key: %s", path)
	}
	value, err := convert(old, raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	section[leaf] = value

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func convert(old any, raw string) (any, error) {
	switch old.(type) {
	case map[string]any:
		return nil, fmt.Errorf("is a section, not a value")
	case bool:
		return strconv.ParseBool(raw)
	case float64:
		return strconv.ParseFloat(raw, 64)
	case []any, nil: // an empty list marshals as null
		var list []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}
		return list, nil
	default:
		return raw, nil
	}
}

// Sanitize returns a copy of cfg with inline secrets masked. Keys read from
// environment variables are only named in the config, so they need no masking.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Channels.Telegram.AllowFrom = append(FlexStringList(nil), cfg.Channels.Telegram.AllowFrom...)
	if out.Channels.Telegram.Token != "" {
		out.Channels.Telegram.Token = maskString(out.Channels.Telegram.Token)
	}
	return &out
}

// maskString keeps the first and last 4 characters of longer secrets.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every leaf setting sorted by path.
func ListPaths(cfg *Config) []Setting {
	m, err := tree(cfg)
	if err != nil {
		return nil
	}
	var out []Setting
	flatten("", m, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func flatten(prefix string, m map[string]any, out *[]Setting) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(path, sub, out)
			continue
		}
		*out = append(*out, Setting{Path: path, Value: v})
	}
}
