package codec

import (
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type cartRow struct {
	ID        string    `json:"id" cbor:"id" msgpack:"id"`
	ProductID string    `json:"product_id" cbor:"product_id" msgpack:"product_id"`
	Quantity  int       `json:"quantity" cbor:"quantity" msgpack:"quantity"`
	CreatedAt time.Time `json:"created_at" cbor:"created_at" msgpack:"created_at"`
}

func TestStructCodecs(t *testing.T) {
	row := cartRow{ID: "c1", ProductID: "p1", Quantity: 3, CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	cases := []struct {
		name string
		c    Codec[cartRow]
	}{
		{"json", JSON[cartRow]{}},
		{"cbor", MustCBOR[cartRow](false)},
		{"cbor deterministic", MustCBOR[cartRow](true)},
		{"msgpack", Msgpack[cartRow]{}},
		{"limit", Limit[cartRow]{Inner: JSON[cartRow]{}, MaxDecode: 1024}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := tc.c.Encode(row)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := tc.c.Decode(b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.ID != row.ID || got.ProductID != row.ProductID || got.Quantity != row.Quantity || !got.CreatedAt.Equal(row.CreatedAt) {
				t.Fatalf("got %+v want %+v", got, row)
			}
		})
	}
}

func TestCBORDeterministicIsStable(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	a, _ := c.Encode(map[string]int{"b": 2, "a": 1, "c": 3})
	for i := 0; i < 10; i++ {
		b, _ := c.Encode(map[string]int{"c": 3, "a": 1, "b": 2})
		if string(a) != string(b) {
			t.Fatalf("deterministic encoding differs")
		}
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxDecode: 4}
	if _, err := c.Decode([]byte(strings.Repeat("x", 5))); err == nil {
		t.Fatalf("expected size error")
	}
	if got, err := c.Decode([]byte("abcd")); err != nil || got != "abcd" {
		t.Fatalf("Decode at limit: %q %v", got, err)
	}
	unlimited := Limit[string]{Inner: String{}}
	if _, err := unlimited.Decode([]byte(strings.Repeat("x", 1<<16))); err != nil {
		t.Fatalf("MaxDecode=0 should not limit: %v", err)
	}
}

func TestRawCodecs(t *testing.T) {
	b, _ := Bytes{}.Encode([]byte{1, 2})
	if got, _ := (Bytes{}).Decode(b); len(got) != 2 || got[1] != 2 {
		t.Fatalf("Bytes round trip: %v", got)
	}
	s, _ := String{}.Encode("wishlist")
	if got, _ := (String{}).Decode(s); got != "wishlist" {
		t.Fatalf("String round trip: %q", got)
	}
}

func TestProtobuf(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	b, err := c.Encode(wrapperspb.String("p-42"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !proto.Equal(got, wrapperspb.String("p-42")) {
		t.Fatalf("got %v", got)
	}
	if _, err := c.Decode([]byte{0xff, 0xff}); err == nil {
		t.Fatalf("expected error on garbage")
	}
}
