package rowkey

import (
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		dishID string
		itemID string
	}{
		{"plain", "d1", "i1"},
		{"uuid", "7f0c2a4e-51a3-4bd6-9a59-3f7f3f1c2b10", "0b6d7c65-6f2f-4c0e-8f79-7d5f1c0d9e21"},
		{"separator in dish", "a|b", "c"},
		{"separator in item", "a", "b|c|d"},
		{"percent", "50%", "%7C"},
		{"escaped looking", "%25", "%%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := Encode(tt.dishID, tt.itemID)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			d, i, err := Decode(key)
			if err != nil {
				t.Fatalf("Decode(%q): %v", key, err)
			}
			if d != tt.dishID || i != tt.itemID {
				t.Errorf("round trip = (%q, %q), want (%q, %q)", d, i, tt.dishID, tt.itemID)
			}
		})
	}
}

func TestEncodeDistinctInputsGiveDistinctKeys(t *testing.T) {
	a := MustEncode("a|b", "c")
	b := MustEncode("a", "b|c")
	if a == b {
		t.Fatalf("collision: both encode to %q", a)
	}
}

func TestEncodeRejectsEmpty(t *testing.T) {
	if _, err := Encode("", "x"); err == nil {
		t.Error("expected error for empty dish id")
	}
	if _, err := Encode("x", ""); err == nil {
		t.Error("expected error for empty item id")
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, key := range []string{
		"",
		"no-separator",
		"a|b|c",
		"|b",
		"a|",
		"a%|b",
		"a%2|b",
		"a%41|b",
		"a%7c|b",
	} {
		_, _, err := Decode(key)
		if !errors.Is(err, ErrUnparseableKey) {
			t.Errorf("Decode(%q) err = %v, want ErrUnparseableKey", key, err)
		}
	}
}

func TestBelongsTo(t *testing.T) {
	key := MustEncode("soup", "stock")
	if !BelongsTo(key, "soup") {
		t.Error("key should belong to soup")
	}
	if BelongsTo(key, "sou") {
		t.Error("prefix match must not count")
	}
	if BelongsTo("garbage", "garbage") {
		t.Error("unparseable key must not belong to any dish")
	}
}
