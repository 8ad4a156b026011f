package membership

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticSizeAndPeers(t *testing.T) {
	s := NewStatic("a", "b", "c")
	require.Equal(t, 3, s.Size())
	require.ElementsMatch(t, []string{"a", "b", "c"}, s.Peers())
}

func TestStaticPeersReturnsDefensiveCopy(t *testing.T) {
	s := NewStatic("a", "b")
	peers := s.Peers()
	peers[0] = "mutated"
	require.Equal(t, []string{"a", "b"}, s.Peers())
}

func TestSoloIsSingleMember(t *testing.T) {
	s := Solo("self")
	require.Equal(t, 1, s.Size())
	require.Equal(t, []string{"self"}, s.Peers())
}

func TestStaticSetReplacesPeerSet(t *testing.T) {
	s := NewStatic("a")
	s.Set("a", "b", "c")
	require.Equal(t, 3, s.Size())
}
