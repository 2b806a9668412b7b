package tron

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// addressVersion prefixes every 20-byte account hash on mainnet.
const addressVersion byte = 0x41

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// AddressFromPublicKey derives the base58 account address for pub. TRON uses
// the same keccak-of-pubkey hash as Ethereum, prefixed with 0x41.
func AddressFromPublicKey(pub ecdsa.PublicKey) string {
	payload := make([]byte, 0, 21)
	payload = append(payload, addressVersion)
	payload = append(payload, crypto.PubkeyToAddress(pub).Bytes()...)
	return encodeCheck(payload)
}

// IsValidAddress reports whether s is a checksummed base58 account address.
func IsValidAddress(s string) bool {
	payload, ok := decodeCheck(s)
	return ok && len(payload) == 21 && payload[0] == addressVersion
}

func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:4]
}

func encodeCheck(payload []byte) string {
	data := make([]byte, 0, len(payload)+4)
	data = append(data, payload...)
	data = append(data, checksum(payload)...)

	n := new(big.Int).SetBytes(data)
	radix := big.NewInt(58)
	mod := new(big.Int)
	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, radix, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for _, b := range data {
		if b != 0 {
			break
		}
		out = append(out, base58Alphabet[0])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func decodeCheck(s string) ([]byte, bool) {
	if s == "" {
		return nil, false
	}
	n := new(big.Int)
	radix := big.NewInt(58)
	for _, c := range []byte(s) {
		idx := strings.IndexByte(base58Alphabet, c)
		if idx < 0 {
			return nil, false
		}
		n.Mul(n, radix)
		n.Add(n, big.NewInt(int64(idx)))
	}
	zeros := 0
	for zeros < len(s) && s[zeros] == base58Alphabet[0] {
		zeros++
	}
	data := append(make([]byte, zeros), n.Bytes()...)
	if len(data) < 5 {
		return nil, false
	}
	payload, sum := data[:len(data)-4], data[len(data)-4:]
	if !bytes.Equal(sum, checksum(payload)) {
		return nil, false
	}
	return payload, true
}
