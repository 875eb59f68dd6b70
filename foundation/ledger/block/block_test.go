package block_test

import (
	"encoding/json"
	"testing"

	"github.com/medledger/ledger/foundation/ledger/block"
	"github.com/medledger/ledger/foundation/ledger/transaction"
)

func Test_ComputeHash(t *testing.T) {
	b := block.New(1, 1700000000.5, map[string]any{"message": "test"}, "0", "sensor1")

	if b.Hash != b.ComputeHash() {
		t.Fatal("Should compute the stored hash at construction.")
	}
	if !b.IsValid() {
		t.Fatal("Should be valid right after construction.")
	}

	// Any field change must surface in the recomputed hash.
	original := b.Hash

	b.Nonce++
	if b.ComputeHash() == original {
		t.Fatal("Should change the hash when the nonce changes.")
	}
	b.Nonce--

	b.PreviousHash = "tampered"
	if b.ComputeHash() == original {
		t.Fatal("Should change the hash when the previous hash changes.")
	}
	b.PreviousHash = "0"

	b.Data = map[string]any{"message": "changed"}
	if b.ComputeHash() == original {
		t.Fatal("Should change the hash when the data changes.")
	}
	b.Data = map[string]any{"message": "test"}

	if b.ComputeHash() != original {
		t.Fatal("Should compute the original hash once the fields are restored.")
	}
}

func Test_HashSurvivesSerialization(t *testing.T) {

	// A block freshly mined in this process carries its payload as a
	// MinedData struct. The same block decoded from a document carries a
	// generic map. Both must hash identically or persisted chains would
	// fail validation on reload.
	tx := transaction.NewAt(map[string]any{"medicine": "aspirin"}, 1700000000.5, "sensor1")
	b := block.New(1, 1700000001.5, block.MinedData{Transactions: []transaction.Transaction{tx}, Count: 1}, "0", "node1")

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Should be able to marshal the block: %v", err)
	}

	decoded, err := block.From(json.RawMessage(data))
	if err != nil {
		t.Fatalf("Should be able to decode the block document: %v", err)
	}

	if decoded.ComputeHash() != b.ComputeHash() {
		t.Fatal("Should hash identically before and after serialization.")
	}
	if !decoded.IsValid() {
		t.Fatal("Should remain valid after a serialization round trip.")
	}
}

func Test_Mine(t *testing.T) {
	b := block.New(1, 1700000000.5, map[string]any{"message": "test"}, "0", "sensor1")

	hash := b.Mine(2)

	if hash != b.Hash {
		t.Fatal("Should return the stored hash.")
	}
	if !block.HasDifficulty(b.Hash, 2) {
		t.Fatalf("Should produce a hash with 2 leading zeros, got %s.", b.Hash)
	}
	if !b.IsValid() {
		t.Fatal("Should leave the block internally consistent.")
	}
	if b.Hash != b.ComputeHash() {
		t.Fatal("Should store the hash of the winning nonce.")
	}
}

func Test_HasDifficulty(t *testing.T) {
	type table struct {
		name       string
		hash       string
		difficulty int
		meets      bool
	}

	tt := []table{
		{name: "zero", hash: "abc", difficulty: 0, meets: true},
		{name: "meets", hash: "00fabc", difficulty: 2, meets: true},
		{name: "short", hash: "0", difficulty: 2, meets: false},
		{name: "misses", hash: "0f0abc", difficulty: 2, meets: false},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			if got := block.HasDifficulty(tst.hash, tst.difficulty); got != tst.meets {
				t.Logf("Test %s:\tgot: %v", tst.name, got)
				t.Logf("Test %s:\texp: %v", tst.name, tst.meets)
				t.Fatalf("Test %s:\tShould report the difficulty check correctly.", tst.name)
			}
		}

		t.Run(tst.name, f)
	}
}
