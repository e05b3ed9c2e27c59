// Package trie implements a from-scratch Merkle-Patricia trie, the same
// branch/extension/leaf node shape go-ethereum's state trie uses, adapted
// here as the pending-block body store: a trie is built once per block
// from its ordered transaction list, its root becomes the block's tx_root,
// and its nodes are persisted under a namespace keyed by the block's hash
// so the body can be fetched back out by anyone who knows the root.
//
// Unlike go-ethereum's trie, nodes are never inlined into their parent's
// encoding regardless of size, and every node is addressed by its 32-byte
// Keccak hash. That trade-off costs a little storage density but keeps the
// encode/hash/persist/resolve logic in this package small and easy to
// reason about, which matters more for a from-scratch implementation than
// matching go-ethereum's wire format byte-for-byte.
package trie

import (
	"errors"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
)

// ErrNodeMissing is returned when a node referenced by hash cannot be
// found in the backing NodeStore, typically because the trie was pruned.
var ErrNodeMissing = errors.New("trie: node missing from store")

// NodeStore is the persistence boundary a trie commits its nodes to and
// resolves them from. A bolt bucket scoped to one block's hash satisfies
// this, as does a plain in-memory map (used by tests and by Trie itself
// before Commit is called).
type NodeStore interface {
	Get(hash [32]byte) ([]byte, bool)
	Put(hash [32]byte, data []byte)
}

// MemoryStore is a NodeStore backed by a map, useful for tests and for
// holding a pending block's trie before it is persisted.
type MemoryStore map[[32]byte][]byte

// Get implements NodeStore.
func (m MemoryStore) Get(hash [32]byte) ([]byte, bool) {
	v, ok := m[hash]
	return v, ok
}

// Put implements NodeStore.
func (m MemoryStore) Put(hash [32]byte, data []byte) {
	m[hash] = data
}

// =============================================================================

// node is the internal trie node representation: nil (empty), a valueNode
// (a stored leaf value), a *shortNode (leaf or extension), or a *fullNode
// (16-way branch plus a value slot).
type node any

type valueNode []byte

type shortNode struct {
	Key []byte // nibble path, without hex-prefix encoding
	Val node
}

type fullNode struct {
	Children [17]node // Children[16] holds a valueNode if a key terminates at this branch
}

// =============================================================================

// Trie is an in-memory Merkle-Patricia trie under construction. The zero
// value is an empty trie.
type Trie struct {
	root node
}

// New constructs an empty trie.
func New() *Trie {
	return &Trie{}
}

// IndexKey returns the fixed-width 8-byte big-endian key used to address
// the item at position i in an ordered list. Using a fixed width for every
// key in a given trie avoids the key-is-a-prefix-of-another-key edge case
// (e.g. RLP's minimal encoding of the integer 0 is the empty string) that
// a variable-width indexing scheme would otherwise have to special-case.
func IndexKey(i int) []byte {
	key := make([]byte, 8)
	v := uint64(i)
	for b := 7; b >= 0; b-- {
		key[b] = byte(v)
		v >>= 8
	}
	return key
}

// Update inserts or replaces the value at key. All keys inserted into the
// same trie must share the same byte length (IndexKey satisfies this);
// mixed-length keys are outside what this package's simplified insert
// logic handles.
func (t *Trie) Update(key, value []byte) {
	t.root = insert(t.root, keyToNibbles(key), valueNode(value))
}

// Get looks up key against the in-memory trie (i.e. before Commit), used
// while a pending block is still being assembled.
func (t *Trie) Get(key []byte) ([]byte, bool) {
	return get(t.root, keyToNibbles(key))
}

// Hash returns the trie's root hash without persisting any nodes. Building
// from the same items in the same order on any node yields the same hash;
// this is what makes tx_root deterministic.
func (t *Trie) Hash() [32]byte {
	nodes := MemoryStore{}
	return hashNode(t.root, nodes)
}

// Commit hashes every node in the trie and returns the root hash along
// with the full set of node encodings, ready to be written into a
// NodeStore scoped to this block's hash.
func (t *Trie) Commit() (root [32]byte, nodes map[[32]byte][]byte) {
	store := MemoryStore{}
	root = hashNode(t.root, store)
	return root, store
}

// BuildIndexed constructs a trie over items keyed by their position
// (IndexKey(i)), the scheme used for a pending block's transaction list,
// and returns it already committed alongside its root hash.
func BuildIndexed(items [][]byte) (root [32]byte, nodes map[[32]byte][]byte) {
	t := New()
	for i, item := range items {
		t.Update(IndexKey(i), item)
	}
	return t.Commit()
}

// =============================================================================

// Get resolves key against a trie persisted under root in store, walking
// node-by-hash. It returns ErrNodeMissing if any node on the path has been
// pruned out of store.
func Get(store NodeStore, root [32]byte, key []byte) ([]byte, bool, error) {
	enc, ok := store.Get(root)
	if !ok {
		return nil, false, ErrNodeMissing
	}
	return getEncoded(store, enc, keyToNibbles(key))
}

// Items walks every IndexKey(0), IndexKey(1), ... entry under root until
// the first miss, reconstructing the ordered item list a trie built by
// BuildIndexed originally held.
func Items(store NodeStore, root [32]byte) ([][]byte, error) {
	var items [][]byte
	for i := 0; ; i++ {
		v, ok, err := Get(store, root, IndexKey(i))
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		items = append(items, v)
	}
	return items, nil
}

func getEncoded(store NodeStore, enc []byte, nibbleKey []byte) ([]byte, bool, error) {
	var items [][]byte
	if err := rlp.DecodeBytes(enc, &items); err != nil {
		return nil, false, err
	}

	switch len(items) {
	case 0:
		return nil, false, nil

	case 2:
		key, hasTerm := compactToHex(items[0])
		matchlen := prefixLen(nibbleKey, key)
		if matchlen < len(key) {
			return nil, false, nil
		}
		rest := nibbleKey[matchlen:]
		if hasTerm {
			if len(rest) != 0 {
				return nil, false, nil
			}
			return items[1], true, nil
		}
		return descend(store, items[1], rest)

	case 17:
		if len(nibbleKey) == 0 {
			if len(items[16]) == 0 {
				return nil, false, nil
			}
			return items[16], true, nil
		}
		child := items[nibbleKey[0]]
		if len(child) == 0 {
			return nil, false, nil
		}
		return descend(store, child, nibbleKey[1:])

	default:
		return nil, false, errors.New("trie: corrupt node encoding")
	}
}

func descend(store NodeStore, childRef []byte, rest []byte) ([]byte, bool, error) {
	var h [32]byte
	if len(childRef) != 32 {
		return nil, false, errors.New("trie: malformed child reference")
	}
	copy(h[:], childRef)

	childEnc, ok := store.Get(h)
	if !ok {
		return nil, false, ErrNodeMissing
	}

	return getEncoded(store, childEnc, rest)
}

// =============================================================================

func insert(n node, key []byte, value node) node {
	if len(key) == 0 {
		return value
	}

	switch n := n.(type) {
	case nil:
		return &shortNode{Key: append([]byte(nil), key...), Val: value}

	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		if matchlen == len(n.Key) {
			return &shortNode{Key: n.Key, Val: insert(n.Val, key[matchlen:], value)}
		}

		branch := &fullNode{}
		branch.Children[n.Key[matchlen]] = insert(nil, n.Key[matchlen+1:], n.Val)
		branch.Children[key[matchlen]] = insert(nil, key[matchlen+1:], value)

		if matchlen == 0 {
			return branch
		}
		return &shortNode{Key: key[:matchlen], Val: branch}

	case *fullNode:
		n.Children[key[0]] = insert(n.Children[key[0]], key[1:], value)
		return n

	default:
		panic("trie: invalid node in insert")
	}
}

func get(n node, key []byte) ([]byte, bool) {
	switch n := n.(type) {
	case nil:
		return nil, false
	case valueNode:
		if len(key) != 0 {
			return nil, false
		}
		return []byte(n), true
	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		if matchlen < len(n.Key) {
			return nil, false
		}
		return get(n.Val, key[matchlen:])
	case *fullNode:
		if len(key) == 0 {
			return get(n.Children[16], nil)
		}
		return get(n.Children[key[0]], key[1:])
	default:
		return nil, false
	}
}

func hashNode(n node, nodes MemoryStore) [32]byte {
	enc := encodeNode(n, nodes)
	h := crypto.Keccak256(enc)
	nodes[h] = enc
	return h
}

func encodeNode(n node, nodes MemoryStore) []byte {
	switch n := n.(type) {
	case nil:
		enc, _ := rlp.EncodeToBytes([][]byte{})
		return enc

	case *shortNode:
		key := hexToCompact(n.Key)
		val := childRef(n.Val, nodes)
		enc, _ := rlp.EncodeToBytes([][]byte{key, val})
		return enc

	case *fullNode:
		items := make([][]byte, 17)
		for i := range n.Children {
			items[i] = childRef(n.Children[i], nodes)
		}
		enc, _ := rlp.EncodeToBytes(items)
		return enc

	default:
		panic("trie: invalid node in encode")
	}
}

func childRef(n node, nodes MemoryStore) []byte {
	switch n := n.(type) {
	case nil:
		return nil
	case valueNode:
		return []byte(n)
	default:
		h := hashNode(n, nodes)
		return h[:]
	}
}

// =============================================================================

// keyToNibbles expands a byte key into a 4-bit nibble path terminated by
// the sentinel value 16, used to mark that a leaf value lives here rather
// than deeper in the trie.
func keyToNibbles(key []byte) []byte {
	l := len(key)*2 + 1
	nibbles := make([]byte, l)
	for i, b := range key {
		nibbles[i*2] = b / 16
		nibbles[i*2+1] = b % 16
	}
	nibbles[l-1] = 16
	return nibbles
}

func prefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// hexToCompact applies the standard hex-prefix encoding: the high nibble
// of the first byte carries an odd-length flag and a terminator flag, so a
// decoder can recover both the nibble path and whether it ends in a value
// (a leaf) or continues into another node (an extension).
func hexToCompact(hex []byte) []byte {
	term := byte(0)
	if hasTerm(hex) {
		term = 1
		hex = hex[:len(hex)-1]
	}

	buf := make([]byte, len(hex)/2+1)
	buf[0] = term << 5
	if len(hex)&1 == 1 {
		buf[0] |= 1 << 4
		buf[0] |= hex[0]
		hex = hex[1:]
	}

	for i := 0; i < len(hex); i += 2 {
		buf[i/2+1] = hex[i]<<4 | hex[i+1]
	}

	return buf
}

// compactToHex reverses hexToCompact, also reporting whether the
// terminator flag was set.
func compactToHex(compact []byte) (hex []byte, term bool) {
	if len(compact) == 0 {
		return nil, false
	}

	term = compact[0]&0x20 != 0
	odd := compact[0]&0x10 != 0

	for _, b := range compact[1:] {
		hex = append(hex, b>>4, b&0x0f)
	}
	if odd {
		hex = append([]byte{compact[0] & 0x0f}, hex...)
	}
	if term {
		hex = append(hex, 16)
	}

	return hex, term
}

func hasTerm(hex []byte) bool {
	return len(hex) > 0 && hex[len(hex)-1] == 16
}
