// Package placeholder substitutes {field} tokens in subject and body templates with values from a CSV record.
package placeholder

import (
	"strings"

	"github.com/yusufsyaifudin/bulkmail/pkg/csvrecord"
)

const (
	openBrace  = '{'
	closeBrace = '}'
)

type token struct {
	start, end int // byte offsets of '{' and '}' in template
	key        string
}

// scan walks the template once and returns well-formed tokens in order.
// A '{' followed by another '{' before any '}' is literal.
func scan(template string) []token {
	tokens := make([]token, 0)
	open := -1
	for i := 0; i < len(template); i++ {
		switch template[i] {
		case openBrace:
			open = i
		case closeBrace:
			if open < 0 {
				continue
			}

			tokens = append(tokens, token{
				start: open,
				end:   i,
				key:   strings.TrimSpace(template[open+1 : i]),
			})
			open = -1
		}
	}

	return tokens
}

func lookup(record csvrecord.Record, key string) (string, bool) {
	if key == "" {
		return "", false
	}

	return record.Get(key)
}

// Render replaces every {key} whose key exists in record with the record value.
// Tokens without a matching field are left as is, replacement text is never scanned again.
func Render(template string, record csvrecord.Record) string {
	tokens := scan(template)
	if len(tokens) == 0 {
		return template
	}

	var sb strings.Builder
	sb.Grow(len(template))

	last := 0
	for _, tok := range tokens {
		val, ok := lookup(record, tok.key)
		if !ok {
			continue
		}

		sb.WriteString(template[last:tok.start])
		sb.WriteString(val)
		last = tok.end + 1
	}

	sb.WriteString(template[last:])
	return sb.String()
}

// Tokens returns distinct, lower-cased token keys in the order they first appear.
func Tokens(template string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, tok := range scan(template) {
		key := csvrecord.NormalizeKey(tok.key)
		if key == "" {
			continue
		}

		if _, exist := seen[key]; exist {
			continue
		}

		seen[key] = struct{}{}
		out = append(out, key)
	}

	return out
}

// Missing returns token keys in template that record cannot fill.
func Missing(template string, record csvrecord.Record) []string {
	out := make([]string, 0)
	for _, key := range Tokens(template) {
		if _, ok := lookup(record, key); !ok {
			out = append(out, key)
		}
	}

	return out
}
