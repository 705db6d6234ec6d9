package store

import "fmt"

// Condition matches a payload key against one value or any of several.
// With OrMissing set, payloads that lack the key (or hold an empty value)
// also match.
type Condition struct {
	Key       string   `json:"key"`
	Value     string   `json:"value,omitempty"`
	Any       []string `json:"any,omitempty"`
	OrMissing bool     `json:"or_missing,omitempty"`
}

// Filter is a conjunction of payload conditions.
type Filter struct {
	Must []Condition `json:"must,omitempty"`
}

// NewFilter returns an empty filter.
func NewFilter() *Filter {
	return &Filter{}
}

// Match adds key == value. Empty values are ignored.
func (f *Filter) Match(key, value string) *Filter {
	if value != "" {
		f.Must = append(f.Must, Condition{Key: key, Value: value})
	}
	return f
}

// MatchOrMissing adds key == value, also accepting payloads without key.
// Empty values are ignored.
func (f *Filter) MatchOrMissing(key, value string) *Filter {
	if value != "" {
		f.Must = append(f.Must, Condition{Key: key, Value: value, OrMissing: true})
	}
	return f
}

// MatchAny adds key IN values. An empty list is ignored.
func (f *Filter) MatchAny(key string, values []string) *Filter {
	if len(values) > 0 {
		f.Must = append(f.Must, Condition{Key: key, Any: append([]string(nil), values...)})
	}
	return f
}

// Empty reports whether the filter has no conditions.
func (f *Filter) Empty() bool {
	return f == nil || len(f.Must) == 0
}

// Matches evaluates the filter against a payload. A nil filter matches
// everything. List-valued payload fields match if any element matches.
func (f *Filter) Matches(payload map[string]interface{}) bool {
	if f.Empty() {
		return true
	}
	for _, c := range f.Must {
		if !c.matches(payload[c.Key]) {
			return false
		}
	}
	return true
}

func (c Condition) matches(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return c.OrMissing
	case []string:
		if len(val) == 0 {
			return c.OrMissing
		}
		for _, s := range val {
			if c.accepts(s) {
				return true
			}
		}
		return false
	case []interface{}:
		if len(val) == 0 {
			return c.OrMissing
		}
		for _, item := range val {
			if c.accepts(fmt.Sprint(item)) {
				return true
			}
		}
		return false
	case string:
		if val == "" && c.OrMissing {
			return true
		}
		return c.accepts(val)
	default:
		return c.accepts(fmt.Sprint(val))
	}
}

func (c Condition) accepts(s string) bool {
	if len(c.Any) > 0 {
		for _, a := range c.Any {
			if s == a {
				return true
			}
		}
		return false
	}
	return s == c.Value
}
