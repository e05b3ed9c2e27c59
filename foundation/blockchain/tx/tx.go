// Package tx defines the transaction entity that flows through the
// mempool, into pending block bodies, and finally into confirmed blocks.
package tx

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/codec"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/decimal"
)

// Well-known tx_type tags carried inside Data. Any other tag is treated as
// opaque application data; the core never interprets it.
const (
	TypeTransfer = "transfer"
	TypeCoinbase = "coinbase"
	TypeSlash    = "slash"
)

// Validation error taxonomy (§7). Components wrap these with
// github.com/pkg/errors so call sites can still errors.Is against the
// sentinel after the wrap.
var (
	ErrInvalidSignature = errors.New("tx: invalid signature")
	ErrSenderMismatch   = errors.New("tx: recovered sender does not match claimed sender")
	ErrMalformedPayload = errors.New("tx: malformed payload")
)

// unsigned carries only the fields that are part of the signed payload.
// Its RLP encoding, hashed, is exactly what Sign and Sender operate over.
type unsigned struct {
	Nonce uint64
	To    crypto.Address
	Value decimal.Decimal
	Fee   decimal.Decimal
	Data  []byte
}

// Tx is a transaction as carried through the mempool and inside a pending
// block's body. The sender is never stored directly; it is recovered from
// the signature every time it is needed.
type Tx struct {
	Nonce uint64
	To    crypto.Address
	Value decimal.Decimal
	Fee   decimal.Decimal
	Data  []byte
	V     uint8
	R     [32]byte
	S     [32]byte
}

func (tx Tx) unsigned() unsigned {
	return unsigned{
		Nonce: tx.Nonce,
		To:    tx.To,
		Value: tx.Value,
		Fee:   tx.Fee,
		Data:  tx.Data,
	}
}

// SigningHash returns H(rlp(tx without v,r,s)), the payload that gets
// signed and later used to recover the sender.
func (tx Tx) SigningHash() ([32]byte, error) {
	return codec.Hash(tx.unsigned())
}

// Hash returns H(rlp(tx including signature)), the transaction's identity
// for mempool deduplication and for addressing it inside a block body.
func (tx Tx) Hash() ([32]byte, error) {
	return codec.Hash(tx)
}

// New builds an unsigned transaction from its fields.
func New(nonce uint64, to crypto.Address, value, fee decimal.Decimal, data []byte) Tx {
	return Tx{
		Nonce: nonce,
		To:    to,
		Value: value,
		Fee:   fee,
		Data:  data,
	}
}

// Sign computes the signing hash and produces a fully signed Tx.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (Tx, error) {
	h, err := tx.SigningHash()
	if err != nil {
		return Tx{}, err
	}

	sig, err := crypto.Sign(h, privateKey)
	if err != nil {
		return Tx{}, err
	}

	signed := tx
	signed.V = sig.V
	signed.R = sig.R
	signed.S = sig.S

	return signed, nil
}

// Sender recovers the address that produced (V, R, S) over SigningHash(tx).
// The sender is never carried as a field; it is always derived this way, so
// a tx cannot claim to be from an address it did not sign for.
func (tx Tx) Sender() (crypto.Address, error) {
	if err := tx.ValidateSignature(); err != nil {
		return crypto.Address{}, err
	}

	h, err := tx.SigningHash()
	if err != nil {
		return crypto.Address{}, err
	}

	addr, err := crypto.Recover(h, crypto.Signature{V: tx.V, R: tx.R, S: tx.S})
	if err != nil {
		return crypto.Address{}, ErrInvalidSignature
	}

	return addr, nil
}

// ValidateSignature checks that (V, R, S) are in the valid secp256k1 range.
// It does not itself verify a claimed sender; call Sender for that.
func (tx Tx) ValidateSignature() error {
	if err := crypto.Validate(crypto.Signature{V: tx.V, R: tx.R, S: tx.S}); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// Type extracts the "tx_type" tag from Data, the only part of the payload
// the core ever interprets. Data is otherwise opaque application JSON.
func (tx Tx) Type() (string, error) {
	if len(tx.Data) == 0 {
		return "", nil
	}

	var payload struct {
		TxType string `json:"tx_type"`
	}
	if err := json.Unmarshal(tx.Data, &payload); err != nil {
		return "", ErrMalformedPayload
	}

	return payload.TxType, nil
}

// Encode serializes tx via the shared codec, for persistence and for
// assembling a pending block's trie-indexed body.
func (tx Tx) Encode() ([]byte, error) {
	return codec.Encode(tx)
}

// Decode is the inverse of Encode.
func Decode(data []byte) (Tx, error) {
	var tx Tx
	if err := codec.Decode(data, &tx); err != nil {
		return Tx{}, err
	}
	return tx, nil
}
