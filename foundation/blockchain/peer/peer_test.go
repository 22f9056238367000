package peer_test

import (
	"testing"

	"github.com/minervachain/minerva/foundation/blockchain/peer"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_PeerSet(t *testing.T) {
	t.Log("Given the need to manage the set of known peers.")
	{
		t.Logf("\tTest 0:\tWhen adding, deduplicating and copying peers.")
		{
			ps := peer.NewPeerSet()

			if !ps.Add(peer.New("host1:10080")) {
				t.Fatalf("\t%s\tTest 0:\tShould report a new peer on first add.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould report a new peer on first add.", success)

			if ps.Add(peer.New("host1:10080")) {
				t.Fatalf("\t%s\tTest 0:\tShould not report a known peer as new.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not report a known peer as new.", success)

			ps.Add(peer.New("host2:10080"))

			peers := ps.Copy("host1:10080")
			if len(peers) != 1 || !peers[0].Match("host2:10080") {
				t.Fatalf("\t%s\tTest 0:\tShould copy the set without the specified host: %+v", failed, peers)
			}
			t.Logf("\t%s\tTest 0:\tShould copy the set without the specified host.", success)

			ps.Remove(peer.New("host2:10080"))
			if len(ps.Copy("")) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould remove a peer from the set.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould remove a peer from the set.", success)
		}
	}
}
