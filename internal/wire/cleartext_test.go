package wire

import (
	"errors"
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	values := []int64{2, 100, 70}
	payload := EncodeCleartext(values)

	if len(payload) != 3*FieldWidth {
		t.Fatalf("expected %d bytes, got %d", 3*FieldWidth, len(payload))
	}

	decoded, err := DecodeCleartext(payload, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range values {
		if decoded[i] != v {
			t.Errorf("field %d: expected %d, got %d", i, v, decoded[i])
		}
	}
}

func TestDecode_NegativeValues(t *testing.T) {
	payload := EncodeCleartext([]int64{-42, 7})
	decoded, err := DecodeCleartext(payload, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded[0] != -42 {
		t.Errorf("expected -42, got %d", decoded[0])
	}
}

func TestDecode_WrongLength(t *testing.T) {
	payload := EncodeCleartext([]int64{1, 2, 3})

	if _, err := DecodeCleartext(payload, 4); !errors.Is(err, ErrMalformedCleartext) {
		t.Errorf("expected ErrMalformedCleartext for short payload, got %v", err)
	}
	if _, err := DecodeCleartext(payload[:5], 3); !errors.Is(err, ErrMalformedCleartext) {
		t.Errorf("expected ErrMalformedCleartext for truncated payload, got %v", err)
	}
	if _, err := DecodeCleartext(nil, 3); !errors.Is(err, ErrMalformedCleartext) {
		t.Errorf("expected ErrMalformedCleartext for empty payload, got %v", err)
	}
}
