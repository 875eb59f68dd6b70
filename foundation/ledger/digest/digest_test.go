package digest_test

import (
	"encoding/json"
	"testing"

	"github.com/medledger/ledger/foundation/ledger/digest"
)

func Test_Canonical(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	// A struct and the map form of the same document must serialize
	// identically, since blocks hash both shapes across a save/load cycle.
	st := payload{Name: "aspirin", Count: 3}
	mp := map[string]any{"name": "aspirin", "count": 3}

	sb, err := digest.Canonical(st)
	if err != nil {
		t.Fatalf("Should be able to canonicalize a struct: %v", err)
	}
	mb, err := digest.Canonical(mp)
	if err != nil {
		t.Fatalf("Should be able to canonicalize a map: %v", err)
	}

	if string(sb) != string(mb) {
		t.Logf("got: %s", sb)
		t.Logf("exp: %s", mb)
		t.Fatal("Should serialize a struct and its map form identically.")
	}
}

func Test_Hash(t *testing.T) {
	value := map[string]any{"device_id": "sensor1", "count": 7}

	h1 := digest.Hash(value)
	h2 := digest.Hash(value)
	if h1 != h2 {
		t.Fatal("Should produce a stable hash for the same value.")
	}

	if len(h1) != 64 {
		t.Fatalf("Should produce a 64 character hex digest, got %d.", len(h1))
	}

	// A decoded copy of the same document hashes identically even though
	// its numbers are now float64.
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("Should be able to marshal the value: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Should be able to unmarshal the value: %v", err)
	}

	if digest.Hash(decoded) != h1 {
		t.Fatal("Should hash a decoded copy identically to the original.")
	}

	changed := map[string]any{"device_id": "sensor1", "count": 8}
	if digest.Hash(changed) == h1 {
		t.Fatal("Should hash different values differently.")
	}
}
