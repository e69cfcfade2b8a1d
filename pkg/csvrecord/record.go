package csvrecord

import (
	"sort"
	"strings"

	"github.com/segmentio/encoding/json"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	FieldName     = "name"
	FieldEmail    = "email"
	FieldPassword = "password"
)

// Record is one normalized CSV row: trimmed, lower-cased keys and trimmed values.
// A Record never changes once created, every accessor returns copies.
type Record struct {
	fields map[string]string
}

// New builds a Record from arbitrary key/value pairs, normalizing both sides.
// When two keys normalize to the same name, the first non-empty value in sorted raw-key order wins.
func New(fields map[string]string) Record {
	rawKeys := make([]string, 0, len(fields))
	for k := range fields {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)

	out := make(map[string]string, len(fields))
	for _, rawKey := range rawKeys {
		key := NormalizeKey(rawKey)
		val := strings.TrimSpace(fields[rawKey])
		if prev, exist := out[key]; exist && prev != "" {
			continue
		}

		out[key] = val
	}

	return Record{fields: out}
}

// NormalizeKey trims and lower-cases a header name.
func NormalizeKey(key string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(key))
}

func foldKey(key string) string {
	return cases.Fold().String(strings.TrimSpace(key))
}

// Get returns the value for key, matched case-insensitively.
func (r Record) Get(key string) (string, bool) {
	if v, ok := r.fields[NormalizeKey(key)]; ok {
		return v, true
	}

	folded := foldKey(key)
	for k, v := range r.fields {
		if foldKey(k) == folded {
			return v, true
		}
	}

	return "", false
}

// Value is like Get but returns empty string on a miss.
func (r Record) Value(key string) string {
	v, _ := r.Get(key)
	return v
}

// Keys returns the field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}

// Map returns a copy of the underlying fields.
func (r Record) Map() map[string]string {
	out := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}

	return out
}

func (r Record) Len() int {
	return len(r.fields)
}

func (r Record) Name() string {
	return r.Value(FieldName)
}

// Email is lower-cased so it can be used as an identity.
func (r Record) Email() string {
	return strings.ToLower(r.Value(FieldEmail))
}

func (r Record) Password() string {
	return r.Value(FieldPassword)
}

// WithoutSecrets returns a copy of the record without the password field.
func (r Record) WithoutSecrets() Record {
	out := r.Map()
	delete(out, FieldPassword)
	return Record{fields: out}
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.fields == nil {
		return []byte(`{}`), nil
	}

	return json.Marshal(r.fields)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	fields := map[string]string{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}

	*r = New(fields)
	return nil
}
