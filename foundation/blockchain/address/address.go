// Package address implements the account id scheme. An account id is the
// base58check encoding of a versioned, hashed public key, so every id is
// self validating and a typo never resolves to a different account.
package address

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

// version is the byte prepended to the hashed payload before the checksum
// is computed. 0x4D is ASCII 'M'.
const version = 0x4D

// checksumLength is the number of double-sha256 bytes appended to the
// versioned payload.
const checksumLength = 4

// CoinbaseID is the reserved sender for the block reward transaction. It is
// not derived from any key and never validates as an account id.
const CoinbaseID AccountID = "coinbase"

// AccountID represents an account id that is used to sign transactions and
// is associated with transactions on the blockchain.
type AccountID string

// FromPublicKey converts the public key into an account id.
func FromPublicKey(pub ecdsa.PublicKey) AccountID {
	return encode(crypto.FromECDSAPub(&pub))
}

// NewContractID derives the account id the contract deployed by the
// specified sender with the specified nonce lives at.
func NewContractID(sender AccountID, nonce uint64) AccountID {
	data := make([]byte, 0, len(sender)+8)
	data = append(data, sender...)
	data = binary.BigEndian.AppendUint64(data, nonce)

	return encode(data)
}

// ToAccountID constructs an account id from the specified string, checking
// the embedded checksum.
func ToAccountID(value string) (AccountID, error) {
	a := AccountID(value)
	if !a.IsAccountID() {
		return "", fmt.Errorf("invalid account id %q", value)
	}

	return a, nil
}

// IsAccountID verifies the underlying string decodes to a properly
// versioned and checksummed account id.
func (a AccountID) IsAccountID() bool {
	raw, err := base58.Decode(string(a))
	if err != nil {
		return false
	}

	if len(raw) != 1+ripemd160.Size+checksumLength {
		return false
	}

	if raw[0] != version {
		return false
	}

	payload := raw[:1+ripemd160.Size]

	return bytes.Equal(raw[1+ripemd160.Size:], checksum(payload))
}

// =============================================================================

// encode runs the full derivation pipeline over the specified raw bytes:
// sha256, ripemd160, version byte, checksum, base58.
func encode(data []byte) AccountID {
	sha := sha256.Sum256(data)

	rip := ripemd160.New()
	rip.Write(sha[:])

	payload := make([]byte, 0, 1+ripemd160.Size+checksumLength)
	payload = append(payload, version)
	payload = rip.Sum(payload)
	payload = append(payload, checksum(payload)...)

	return AccountID(base58.Encode(payload))
}

// checksum returns the first bytes of the double sha256 of the payload.
func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])

	return second[:checksumLength]
}
