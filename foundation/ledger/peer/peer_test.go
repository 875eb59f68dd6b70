package peer_test

import (
	"testing"

	"github.com/medledger/ledger/foundation/ledger/peer"
)

func Test_CRUD(t *testing.T) {
	type table struct {
		name  string
		peers []peer.Peer
	}

	tt := []table{
		{
			name:  "basic",
			peers: []peer.Peer{{Host: "host1"}, {Host: "host2"}, {Host: "host3"}},
		},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			ps := peer.NewSet()

			for _, p := range tst.peers {
				if !ps.Add(p) {
					t.Fatalf("Test %s:\tShould report a new peer as added.", tst.name)
				}
			}

			if ps.Add(tst.peers[0]) {
				t.Fatalf("Test %s:\tShould report a duplicate peer as not added.", tst.name)
			}

			if ps.Count() != len(tst.peers) {
				t.Logf("Test %s:\tgot: %d", tst.name, ps.Count())
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers))
				t.Fatalf("Test %s:\tShould count the registered peers.", tst.name)
			}

			hosts := ps.Hosts("host2")
			if len(hosts) != len(tst.peers)-1 {
				t.Logf("Test %s:\tgot: %d", tst.name, len(hosts))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers)-1)
				t.Fatalf("Test %s:\tShould exclude the specified host.", tst.name)
			}

			for i := 1; i < len(hosts); i++ {
				if hosts[i-1] > hosts[i] {
					t.Fatalf("Test %s:\tShould return the hosts in sorted order.", tst.name)
				}
			}

			ps.Remove(tst.peers[0])
			if ps.Count() != len(tst.peers)-1 {
				t.Fatalf("Test %s:\tShould remove a peer.", tst.name)
			}
		}

		t.Run(tst.name, f)
	}
}
