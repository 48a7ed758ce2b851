package merkle

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func addresses(n int) []common.Address {
	out := make([]common.Address, n)
	for i := range out {
		out[i] = common.HexToAddress(fmt.Sprintf("0x%040x", i+1))
	}
	return out
}

func TestLeafMatchesKeccakOfAddressBytes(t *testing.T) {
	addr := common.HexToAddress("0x5B38Da6a701c568545dCfcB03FcB875f56beddC4")
	require.Equal(t, crypto.Keccak256Hash(addr.Bytes()), Leaf(addr))
}

func TestRoot_EdgeCases(t *testing.T) {
	require.Equal(t, common.Hash{}, Root(nil))

	one := addresses(1)
	require.Equal(t, Leaf(one[0]), Root(one))

	proof, err := Proof(one, one[0])
	require.NoError(t, err)
	require.Empty(t, proof)
	require.True(t, Verify(proof, Root(one), Leaf(one[0])))

	two := addresses(2)
	a, b := Leaf(two[0]), Leaf(two[1])
	if strings.Compare(a.Hex(), b.Hex()) > 0 {
		a, b = b, a
	}
	require.Equal(t, crypto.Keccak256Hash(a[:], b[:]), Root(two))
}

func TestRoot_PermutationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{2, 3, 5, 8, 13, 64} {
		set := addresses(n)
		want := Root(set)

		for i := 0; i < 10; i++ {
			shuffled := append([]common.Address(nil), set...)
			rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
			require.Equal(t, want, Root(shuffled), "n=%d", n)
		}

		// duplicates do not change the root
		require.Equal(t, want, Root(append(set, set[0])), "n=%d", n)
	}
}

func TestProof_VerifiesForEveryMember(t *testing.T) {
	for _, n := range []int{2, 3, 4, 7, 10, 33} {
		set := addresses(n)
		root := Root(set)
		for _, addr := range set {
			proof, err := Proof(set, addr)
			require.NoError(t, err)
			require.True(t, Verify(proof, root, Leaf(addr)), "n=%d addr=%s", n, addr.Hex())
		}
	}
}

func TestProof_RejectsNonMembers(t *testing.T) {
	set := addresses(5)
	outsider := common.HexToAddress("0x00000000000000000000000000000000000000ff")

	_, err := Proof(set, outsider)
	require.ErrorIs(t, err, ErrNotInSet)

	proof, err := Proof(set, set[0])
	require.NoError(t, err)
	require.False(t, Verify(proof, Root(set), Leaf(outsider)))
	require.False(t, Verify(proof, Root(set[1:]), Leaf(set[0])))
}

func TestNormalize(t *testing.T) {
	got, err := Normalize([]string{
		" 0x5b38da6a701c568545dcfcb03fcb875f56beddc4",
		"0x5B38Da6a701c568545dCfcB03FcB875f56beddC4",
		"",
		"0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2",
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "0x5B38Da6a701c568545dCfcB03FcB875f56beddC4", got[0].Hex())

	_, err = Normalize([]string{"0x1234"})
	require.ErrorIs(t, err, ErrInvalidAddress)

	list, err := SplitList("0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2, 0x5B38Da6a701c568545dCfcB03FcB875f56beddC4,")
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestProofs(t *testing.T) {
	set := addresses(4)
	proofs, err := Proofs(set, set[:2])
	require.NoError(t, err)
	require.Len(t, proofs, 2)
	require.Len(t, proofs[set[0].Hex()], 2)

	_, err = Proofs(set[:2], set[2:])
	require.ErrorIs(t, err, ErrNotInSet)
}

func TestProofs_LargeSet(t *testing.T) {
	set := addresses(5000)
	root := Root(set)

	proofs, err := Proofs(set, set)
	require.NoError(t, err)
	require.Len(t, proofs, len(set))

	for _, addr := range set {
		hexes := proofs[addr.Hex()]
		proof := make([]common.Hash, len(hexes))
		for i, h := range hexes {
			proof[i] = common.HexToHash(h)
		}
		require.True(t, Verify(proof, root, Leaf(addr)), "proof for %s", addr.Hex())
	}

	single, err := Proof(set, set[1234])
	require.NoError(t, err)
	require.Len(t, proofs[set[1234].Hex()], len(single))
	for i, p := range single {
		require.Equal(t, p.Hex(), proofs[set[1234].Hex()][i])
	}
}

func BenchmarkProofs(b *testing.B) {
	set := addresses(10000)
	for i := 0; i < b.N; i++ {
		if _, err := Proofs(set, set); err != nil {
			b.Fatal(err)
		}
	}
}
