// Package recipe resolves the recipe text shown for an item and scales
// the quantities in it.
package recipe

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Placeholder is shown when no source has a recipe for an item.
const Placeholder = "[RECIPE NOT YET ENTERED]"

// Source says where a resolved recipe came from.
type Source string

const (
	SourceNone    Source = ""
	SourceBackend Source = "backend"
	SourceUser    Source = "user"
	SourceBuiltin Source = "builtin"
)

// Builtin is the recipe table shipped with the binary, keyed by item name.
var Builtin = map[string]string{}

// Book is the per-device recipe table, keyed by item name.
type Book struct {
	user    map[string]string
	builtin map[string]string
}

// NewBook returns a book backed by the given user table and Builtin.
func NewBook(user map[string]string) *Book {
	b := &Book{user: make(map[string]string, len(user)), builtin: Builtin}
	for k, v := range user {
		if strings.TrimSpace(v) != "" {
			b.user[k] = v
		}
	}
	return b
}

// Resolve picks the recipe for an item: backend text first, then the
// user table by name, then the built-in table by name. Blank text counts as absent.
func (b *Book) Resolve(backend *string, name string) (string, Source) {
	if backend != nil && strings.TrimSpace(*backend) != "" {
		return *backend, SourceBackend
	}
	if t, ok := b.user[name]; ok {
		return t, SourceUser
	}
	if t, ok := b.builtin[name]; ok && strings.TrimSpace(t) != "" {
		return t, SourceBuiltin
	}
	return "", SourceNone
}

// Has reports whether any source has a recipe for the item.
func (b *Book) Has(backend *string, name string) bool {
	_, src := b.Resolve(backend, name)
	return src != SourceNone
}

// SetUser stores a user recipe. Blank text removes it.
func (b *Book) SetUser(name, text string) {
	if strings.TrimSpace(text) == "" {
		delete(b.user, name)
		return
	}
	b.user[name] = text
}

// User returns a copy of the user table.
func (b *Book) User() map[string]string {
	out := make(map[string]string, len(b.user))
	for k, v := range b.user {
		out[k] = v
	}
	return out
}

// UserNames lists the names with a user recipe, sorted.
func (b *Book) UserNames() []string {
	names := make([]string, 0, len(b.user))
	for k := range b.user {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

var quantity = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)(\s*)(kg|g|ml|l|oz|cups?|tbsp|tsp|quarts?|pints?|lbs?)\b`)

// Scale multiplies every quantity followed by a unit by factor, rounding
// to two decimals. Numbers without a unit are left alone.
func Scale(text string, factor float64) string {
	if text == "" || factor == 1 {
		return text
	}
	return quantity.ReplaceAllStringFunc(text, func(m string) string {
		sub := quantity.FindStringSubmatch(m)
		n, err := strconv.ParseFloat(sub[1], 64)
		if err != nil {
			return m
		}
		scaled := math.Round(n*factor*100) / 100
		return strconv.FormatFloat(scaled, 'f', -1, 64) + sub[2] + sub[3]
	})
}
