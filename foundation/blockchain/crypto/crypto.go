// Package crypto wraps the secp256k1 signing primitives needed by the
// consensus layer: sign a message hash, recover the signer's public key,
// and derive the 20-byte address used throughout the rest of the system.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"io"
	"math/big"
	"strings"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressLength is the number of bytes in an Address, matching the
// Keccak256-derived addresses used across the rest of the ecosystem.
const AddressLength = 20

// Address is a 20-byte account identifier recovered from a signature's
// public key. It is compared case-insensitively but always rendered as
// upper-case hex, per the wire format the rest of the node expects.
type Address [AddressLength]byte

// ZeroAddress is the address value used for unset beneficiaries.
var ZeroAddress Address

// String renders the address as "0x" followed by upper-case hex.
func (a Address) String() string {
	return "0x" + strings.ToUpper(hex.EncodeToString(a[:]))
}

// Equal compares two addresses case-insensitively, which in practice means
// byte-for-byte equality since both sides are always decoded into the raw
// 20-byte form before comparison.
func (a Address) Equal(other Address) bool {
	return a == other
}

// IsZero reports whether the address is the unset zero value.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// ParseAddress decodes a "0x"-prefixed or bare hex string into an Address,
// accepting either case.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, err
	}
	if len(b) != AddressLength {
		return Address{}, errors.New("crypto: address must be 20 bytes")
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	v, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// =============================================================================

// Signature is the (v, r, s) triple produced by Sign and consumed by
// Recover. v is the recovery id in {0, 1}; r and s are the raw 32-byte
// scalar components of the secp256k1 signature.
type Signature struct {
	V uint8
	R [32]byte
	S [32]byte
}

// GeneratePrivateKey creates a new secp256k1 signing key.
func GeneratePrivateKey() (*ecdsa.PrivateKey, error) {
	return gethcrypto.GenerateKey()
}

// LoadPrivateKey reads a hex-encoded secp256k1 private key from r.
func LoadPrivateKey(r io.Reader) (*ecdsa.PrivateKey, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return gethcrypto.ToECDSA(mustDecodeHexTrimmed(string(data)))
}

// SavePrivateKey writes a secp256k1 private key to w as hex, the inverse of
// LoadPrivateKey.
func SavePrivateKey(w io.Writer, privateKey *ecdsa.PrivateKey) error {
	_, err := w.Write([]byte(hex.EncodeToString(gethcrypto.FromECDSA(privateKey))))
	return err
}

func mustDecodeHexTrimmed(s string) []byte {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	b, _ := hex.DecodeString(s)
	return b
}

// Sign produces a recoverable secp256k1 signature over a 32-byte message
// hash. Callers are responsible for computing the hash according to the
// codec's unsigned encoding rules.
func Sign(hash [32]byte, privateKey *ecdsa.PrivateKey) (Signature, error) {
	sig, err := gethcrypto.Sign(hash[:], privateKey)
	if err != nil {
		return Signature{}, err
	}

	var out Signature
	out.V = sig[64]
	copy(out.R[:], sig[0:32])
	copy(out.S[:], sig[32:64])

	return out, nil
}

// Recover recovers the 20-byte address of the account that produced sig
// over hash.
func Recover(hash [32]byte, sig Signature) (Address, error) {
	if sig.V != 0 && sig.V != 1 {
		return Address{}, errors.New("crypto: invalid recovery id")
	}

	raw := make([]byte, 65)
	copy(raw[0:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	raw[64] = sig.V

	pub, err := gethcrypto.SigToPub(hash[:], raw)
	if err != nil {
		return Address{}, err
	}

	return publicKeyToAddress(pub), nil
}

// Validate reports whether the signature's r and s components are within
// the valid secp256k1 scalar range and the recovery id is 0 or 1.
func Validate(sig Signature) error {
	if sig.V != 0 && sig.V != 1 {
		return errors.New("crypto: invalid recovery id")
	}

	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if !gethcrypto.ValidateSignatureValues(sig.V, r, s, false) {
		return errors.New("crypto: invalid signature values")
	}

	return nil
}

// PublicKeyToAddress derives the address for an ECDSA public key, used when
// a node wants its own address without going through a signature.
func PublicKeyToAddress(pub *ecdsa.PublicKey) Address {
	return publicKeyToAddress(pub)
}

func publicKeyToAddress(pub *ecdsa.PublicKey) Address {
	ga := gethcrypto.PubkeyToAddress(*pub)
	var a Address
	copy(a[:], ga.Bytes())
	return a
}

// Keccak256 hashes the concatenation of data into a 32-byte digest. This is
// the hash function used by the codec for both content hashes (transaction,
// block, vote) and for the Merkle-Patricia trie.
func Keccak256(data ...[]byte) [32]byte {
	var out [32]byte
	copy(out[:], gethcrypto.Keccak256(data...))
	return out
}
