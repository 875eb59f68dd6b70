package pow_test

import (
	"testing"

	"github.com/medledger/ledger/foundation/ledger/block"
	"github.com/medledger/ledger/foundation/ledger/pow"
)

func newBlock(seq int) block.Block {
	return block.New(seq, 1700000000+float64(seq), map[string]any{"seq": seq}, "0", "node1")
}

func Test_Mine(t *testing.T) {
	engine := pow.New(pow.Config{InitialDifficulty: 1})

	b := newBlock(1)
	result := engine.Mine(&b, 1_000_000)

	if !result.Solved {
		t.Fatal("Should solve a difficulty 1 block within the bound.")
	}
	if b.Hash != result.Hash || b.Nonce != result.Nonce {
		t.Fatal("Should leave the winning nonce and hash on the block.")
	}
	if !block.HasDifficulty(b.Hash, 1) {
		t.Fatalf("Should produce a hash meeting the difficulty, got %s.", b.Hash)
	}
	if !b.IsValid() {
		t.Fatal("Should leave the block internally consistent.")
	}

	stats := engine.Stats()
	if stats.BlocksMined != 1 {
		t.Fatalf("Should record the solved block, got %d.", stats.BlocksMined)
	}
	if len(stats.LastDifficulties) != 1 || stats.LastDifficulties[0] != 1 {
		t.Fatal("Should record the difficulty used for the block.")
	}
}

func Test_MineExhausted(t *testing.T) {
	engine := pow.New(pow.Config{InitialDifficulty: 12})

	b := newBlock(1)
	result := engine.Mine(&b, 5)

	if result.Solved {
		t.Fatal("Should report an exhausted search as unsolved.")
	}
	if result.Nonce != 5 {
		t.Fatalf("Should report the exhausted bound, got %d.", result.Nonce)
	}

	if engine.Stats().BlocksMined != 0 {
		t.Fatal("Should not record an unsolved attempt.")
	}
}

func Test_AdjustDifficulty(t *testing.T) {
	engine := pow.New(pow.Config{
		InitialDifficulty: 3,
		TargetTime:        10,
		AdjustmentFactor:  0.5,
	})

	// With no mining history the call is a no-op.
	if got := engine.AdjustDifficulty(1); got != 3 {
		t.Fatalf("Should not retune without history, got %0.1f.", got)
	}

	// Build up the minimum history.
	for i := 0; i < 3; i++ {
		b := newBlock(i)
		if result := engine.Mine(&b, 10_000_000); !result.Solved {
			t.Fatal("Should solve the warm-up blocks.")
		}
	}

	if got := engine.AdjustDifficulty(1); got != 3.5 {
		t.Fatalf("Should raise the difficulty when mining fast, got %0.1f.", got)
	}
	if got := engine.AdjustDifficulty(10); got != 3.5 {
		t.Fatalf("Should hold the difficulty near the target, got %0.1f.", got)
	}
	if got := engine.AdjustDifficulty(30); got != 3 {
		t.Fatalf("Should lower the difficulty when mining slow, got %0.1f.", got)
	}

	// The floor holds no matter how slow mining gets.
	engine.SetDifficulty(1)
	if got := engine.AdjustDifficulty(30); got != 1 {
		t.Fatalf("Should floor the difficulty at one, got %0.1f.", got)
	}
}

func Test_AdjustDifficultyRounding(t *testing.T) {
	engine := pow.New(pow.Config{
		InitialDifficulty: 3,
		TargetTime:        10,
		AdjustmentFactor:  0.2,
	})

	for i := 0; i < 3; i++ {
		b := newBlock(i)
		if result := engine.Mine(&b, 10_000_000); !result.Solved {
			t.Fatal("Should solve the warm-up blocks.")
		}
	}

	// 3 + 0.2 rounds back to 3 on the half step grid.
	if got := engine.AdjustDifficulty(1); got != 3 {
		t.Fatalf("Should round the difficulty to the nearest half step, got %0.1f.", got)
	}
}

func Test_StatsWindow(t *testing.T) {
	engine := pow.New(pow.Config{InitialDifficulty: 1})

	for i := 0; i < 12; i++ {
		b := newBlock(i)
		if result := engine.Mine(&b, 10_000_000); !result.Solved {
			t.Fatal("Should solve every block at difficulty 1.")
		}
	}

	stats := engine.Stats()
	if stats.BlocksMined != 12 {
		t.Fatalf("Should count every solved block, got %d.", stats.BlocksMined)
	}
	if len(stats.LastDifficulties) != 10 {
		t.Fatalf("Should cap the difficulty history at 10, got %d.", len(stats.LastDifficulties))
	}
	if stats.AverageTime <= 0 || stats.TotalTime < stats.AverageTime {
		t.Fatal("Should keep the running time statistics consistent.")
	}
}
