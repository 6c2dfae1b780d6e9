package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"
)

func mustEncode(t *testing.T, s Snapshot) []byte {
	t.Helper()
	b, err := EncodeSnapshot(s)
	if err != nil {
		t.Fatalf("EncodeSnapshot error: %v", err)
	}
	return b
}

func mustDecode(t *testing.T, b []byte) Snapshot {
	t.Helper()
	s, err := DecodeSnapshot(b)
	if err != nil {
		t.Fatalf("DecodeSnapshot error: %v", err)
	}
	return s
}

func TestSnapshotRT(t *testing.T) {
	cases := []struct {
		name string
		in   Snapshot
	}{
		{"empty", Snapshot{}},
		{"one", Snapshot{Gen: 3, FetchedAt: 1_700_000_000_000_000_000, Items: []Item{{ID: "p1", Payload: []byte("hello")}}}},
		{"empty payload", Snapshot{Gen: math.MaxUint64, FetchedAt: -1, Items: []Item{{ID: "x"}, {ID: "y", Payload: []byte{0, 1}}}}},
		{"max id", Snapshot{Items: []Item{{ID: strings.Repeat("k", 0xFFFF), Payload: []byte{9}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mustDecode(t, mustEncode(t, tc.in))
			if got.Gen != tc.in.Gen || got.FetchedAt != tc.in.FetchedAt {
				t.Fatalf("header mismatch: got gen=%d at=%d want gen=%d at=%d",
					got.Gen, got.FetchedAt, tc.in.Gen, tc.in.FetchedAt)
			}
			if len(got.Items) != len(tc.in.Items) {
				t.Fatalf("items len: got %d want %d", len(got.Items), len(tc.in.Items))
			}
			for i := range got.Items {
				if got.Items[i].ID != tc.in.Items[i].ID || !bytes.Equal(got.Items[i].Payload, tc.in.Items[i].Payload) {
					t.Fatalf("item %d mismatch: got %+v want %+v", i, got.Items[i], tc.in.Items[i])
				}
			}
		})
	}
}

func TestEncodeRejectsBadIDs(t *testing.T) {
	for _, id := range []string{"", strings.Repeat("k", 0x10000)} {
		if _, err := EncodeSnapshot(Snapshot{Items: []Item{{ID: id}}}); err == nil {
			t.Fatalf("expected error for id of length %d", len(id))
		}
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	enc := mustEncode(t, Snapshot{Gen: 1, Items: []Item{{ID: "a", Payload: []byte("abc")}}})

	mutate := func(fn func(b []byte) []byte) []byte {
		return fn(append([]byte(nil), enc...))
	}
	cases := []struct {
		name string
		b    []byte
	}{
		{"bad magic", mutate(func(b []byte) []byte { b[0] = 'X'; return b })},
		{"bad version", mutate(func(b []byte) []byte { b[4] = version + 1; return b })},
		{"bad kind", mutate(func(b []byte) []byte { b[5] = kindSnapshot + 1; return b })},
		{"trailing bytes", mutate(func(b []byte) []byte { return append(b, 0xDE, 0xAD) })},
		{"truncated payload", mutate(func(b []byte) []byte { return b[:len(b)-1] })},
		{"truncated header", enc[:10]},
		{"zero id length", mutate(func(b []byte) []byte {
			binary.BigEndian.PutUint16(b[26:28], 0)
			return b
		})},
		{"huge count", mutate(func(b []byte) []byte {
			binary.BigEndian.PutUint32(b[22:26], math.MaxUint32)
			return b
		})},
		{"huge vlen", mutate(func(b []byte) []byte {
			binary.BigEndian.PutUint32(b[29:33], math.MaxUint32)
			return b
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeSnapshot(tc.b); err != ErrCorrupt {
				t.Fatalf("err = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestDecodePayloadAliasesInput(t *testing.T) {
	enc := mustEncode(t, Snapshot{Items: []Item{{ID: "a", Payload: []byte("zz")}}})
	s := mustDecode(t, enc)
	enc[len(enc)-1] = 'y'
	if string(s.Items[0].Payload) != "zy" {
		t.Fatalf("payload should alias input, got %q", s.Items[0].Payload)
	}
}
