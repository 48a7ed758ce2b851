// Package merkle builds sorted-pair keccak256 Merkle trees over address sets,
// compatible with OpenZeppelin's MerkleProof.verify.
package merkle

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrNotInSet is returned when a proof is requested for an address outside the set.
	ErrNotInSet = errors.New("address is not in the set")
	// ErrInvalidAddress is returned for input that is not a 20-byte hex address.
	ErrInvalidAddress = errors.New("invalid address")
)

// Normalize parses, de-duplicates and sorts addresses.
func Normalize(addresses []string) ([]common.Address, error) {
	seen := make(map[common.Address]struct{}, len(addresses))
	out := make([]common.Address, 0, len(addresses))
	for _, raw := range addresses {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
		}
		addr := common.HexToAddress(raw)
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out, nil
}

// SplitList normalizes a comma-delimited address list.
func SplitList(list string) ([]common.Address, error) {
	return Normalize(strings.Split(list, ","))
}

// Leaf hashes one address.
func Leaf(addr common.Address) common.Hash {
	return keccak(addr.Bytes())
}

func keccak(data ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return keccak(a[:], b[:])
}

// tree holds every level of a built tree, leaves first, plus the set it
// was built from.
type tree struct {
	levels  [][]common.Hash
	members map[common.Address]struct{}
}

// build hashes and sorts the leaves once. An odd node is carried up unchanged.
func build(addresses []common.Address) *tree {
	set, members := dedupe(addresses)
	leaves := make([]common.Hash, len(set))
	for i, addr := range set {
		leaves[i] = Leaf(addr)
	}
	sort.Slice(leaves, func(i, j int) bool { return bytes.Compare(leaves[i][:], leaves[j][:]) < 0 })

	levels := [][]common.Hash{leaves}
	for level := leaves; len(level) > 1; {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}
	return &tree{levels: levels, members: members}
}

func (t *tree) root() common.Hash {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return common.Hash{}
	}
	return top[0]
}

// proof walks target's leaf index up the levels, collecting siblings.
func (t *tree) proof(target common.Address) ([]common.Hash, error) {
	if _, ok := t.members[target]; !ok {
		return nil, ErrNotInSet
	}
	leaves := t.levels[0]
	leaf := Leaf(target)
	idx := sort.Search(len(leaves), func(i int) bool { return bytes.Compare(leaves[i][:], leaf[:]) >= 0 })

	proof := make([]common.Hash, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		idx /= 2
	}
	return proof, nil
}

func dedupe(addresses []common.Address) ([]common.Address, map[common.Address]struct{}) {
	seen := make(map[common.Address]struct{}, len(addresses))
	out := make([]common.Address, 0, len(addresses))
	for _, a := range addresses {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out, seen
}

// Root returns the tree root. The empty set has the zero hash as root and a
// single address is its own leaf.
func Root(addresses []common.Address) common.Hash {
	return build(addresses).root()
}

// Proof returns the sibling path from target's leaf to the root.
func Proof(addresses []common.Address, target common.Address) ([]common.Hash, error) {
	return build(addresses).proof(target)
}

// Verify checks proof for leaf against root using sorted-pair hashing.
func Verify(proof []common.Hash, root, leaf common.Hash) bool {
	computed := leaf
	for _, p := range proof {
		computed = hashPair(computed, p)
	}
	return computed == root
}

// Proofs returns a proof for each target, keyed by checksummed address. The
// tree is built once for all targets.
func Proofs(addresses, targets []common.Address) (map[string][]string, error) {
	t := build(addresses)
	out := make(map[string][]string, len(targets))
	for _, target := range targets {
		proof, err := t.proof(target)
		if err != nil {
			return nil, fmt.Errorf("proof for %s: %w", target.Hex(), err)
		}
		hexes := make([]string, len(proof))
		for i, p := range proof {
			hexes[i] = p.Hex()
		}
		out[target.Hex()] = hexes
	}
	return out, nil
}
