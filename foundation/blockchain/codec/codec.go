// Package codec provides the single deterministic binary encoding used for
// every hashed and persisted entity in the node: transactions, pending
// block headers, and votes. It is a thin, named layer over go-ethereum's
// RLP implementation (the same recursive length-prefixed scheme Ethereum
// uses for its own blocks and transactions) so that encode/decode and
// content hashing stay consistent across the whole module instead of each
// package reinventing serialization.
package codec

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
)

// Encode serializes v using the RLP encoding rules. Every exported field of
// v (and of any nested struct) participates, in declaration order; this is
// what makes struct field order part of the wire format and callers must
// not reorder fields in hashed types without expecting hashes to change.
func Encode(v any) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

// Decode parses data into v, the inverse of Encode. decode(encode(x)) == x
// holds for every type in this module that round-trips through Encode.
func Decode(data []byte, v any) error {
	return rlp.DecodeBytes(data, v)
}

// Hash encodes v and returns its 256-bit Keccak digest. This is the single
// hashing routine used for transaction hashes, pending block hashes, and
// vote hashes, so that "hash = H(rlp(x))" means the same thing everywhere
// in the codebase.
func Hash(v any) ([32]byte, error) {
	data, err := Encode(v)
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.Keccak256(data), nil
}
