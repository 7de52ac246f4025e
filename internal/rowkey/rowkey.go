// Package rowkey encodes the composite key that addresses per-row state:
// a dish id and an item id joined by a separator. Both components are
// backend-assigned ids, so a key survives renames and reordering.
package rowkey

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins the two key components.
const Separator = "|"

// ErrUnparseableKey is returned when a key cannot be split into its components.
var ErrUnparseableKey = errors.New("unparseable key")

var (
	escaper   = strings.NewReplacer("%", "%25", "|", "%7C")
	unescaper = strings.NewReplacer("%25", "%", "%7C", "|")
)

// Encode builds the key for an item of a dish.
func Encode(dishID, itemID string) (string, error) {
	if dishID == "" || itemID == "" {
		return "", fmt.Errorf("encode key (%q, %q): empty component", dishID, itemID)
	}
	return escaper.Replace(dishID) + Separator + escaper.Replace(itemID), nil
}

// MustEncode is Encode for ids already known to be non-empty. It panics otherwise.
func MustEncode(dishID, itemID string) string {
	k, err := Encode(dishID, itemID)
	if err != nil {
		panic(err)
	}
	return k
}

// Decode splits a key back into dish id and item id.
func Decode(key string) (dishID, itemID string, err error) {
	parts := strings.Split(key, Separator)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q: want 2 components, got %d", ErrUnparseableKey, key, len(parts))
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q: empty component", ErrUnparseableKey, key)
	}
	for _, p := range parts {
		if err := checkEscapes(p); err != nil {
			return "", "", fmt.Errorf("%w: %q: %v", ErrUnparseableKey, key, err)
		}
	}
	return unescaper.Replace(parts[0]), unescaper.Replace(parts[1]), nil
}

// DishID returns the dish component of key.
func DishID(key string) (string, error) {
	d, _, err := Decode(key)
	return d, err
}

// BelongsTo reports whether key decodes to the given dish. Unparseable keys
// never belong to any dish.
func BelongsTo(key, dishID string) bool {
	d, err := DishID(key)
	return err == nil && d == dishID
}

// checkEscapes rejects any '%' that does not start one of the two escapes
// Encode produces.
func checkEscapes(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			continue
		}
		if i+2 >= len(s) {
			return fmt.Errorf("truncated escape at %d", i)
		}
		switch s[i+1 : i+3] {
		case "25", "7C":
			i += 2
		default:
			return fmt.Errorf("bad escape %q at %d", s[i:i+3], i)
		}
	}
	return nil
}
