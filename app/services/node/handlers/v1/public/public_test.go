package public

import "testing"

// Test_HistoryValue validates route segments are converted into the same
// types the chain stores after a JSON round trip.
func Test_HistoryValue(t *testing.T) {
	type table struct {
		name string
		raw  string
		want any
	}

	tt := []table{
		{"number", "50", float64(50)},
		{"fraction", "2.5", float64(2.5)},
		{"boolean", "true", true},
		{"string", "paracetamol", "paracetamol"},
		{"quoted", `"50"`, `"50"`},
		{"object", `{"a":1}`, `{"a":1}`},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			got := historyValue(tst.raw)
			if got != tst.want {
				t.Errorf("Should convert %q to %T(%v), got %T(%v)", tst.raw, tst.want, tst.want, got, got)
			}
		}

		t.Run(tst.name, f)
	}
}
