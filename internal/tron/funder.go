package tron

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"tronfunder/internal/apperr"
)

// Funder signs and broadcasts TRX transfers from the custodial account.
type Funder struct {
	client  *Client
	key     *ecdsa.PrivateKey
	address string
}

// NewFunder builds a funder from a hex-encoded secp256k1 private key.
func NewFunder(client *Client, privateKeyHex string) (*Funder, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	key, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	return &Funder{
		client:  client,
		key:     key,
		address: AddressFromPublicKey(key.PublicKey),
	}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// Address is the base58 address transfers are sent from.
func (f *Funder) Address() string {
	return f.address
}

type broadcastResponse struct {
	Result  bool   `json:"result"`
	TxID    string `json:"txid"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SubmitTransfer sends amountSun to the given address and returns the
// transaction id reported by the node. The id may be empty when the node
// accepted the transaction without echoing it.
func (f *Funder) SubmitTransfer(ctx context.Context, to string, amountSun int64) (string, error) {
	if amountSun <= 0 {
		return "", apperr.Validation("transfer amount must be positive, got %d sun", amountSun)
	}
	if !IsValidAddress(to) {
		return "", apperr.Validation("invalid recipient address %q", to)
	}

	var tx map[string]json.RawMessage
	err := f.client.post(ctx, "/wallet/createtransaction", map[string]any{
		"owner_address": f.address,
		"to_address":    to,
		"amount":        amountSun,
		"visible":       true,
	}, &tx)
	if err != nil {
		return "", apperr.Upstream(err, "create transfer to %s", to)
	}
	if msg, ok := tx["Error"]; ok {
		return "", apperr.Upstream(fmt.Errorf("%s", unquote(msg)), "create transfer to %s", to)
	}

	if err := f.sign(tx); err != nil {
		return "", err
	}

	var resp broadcastResponse
	if err := f.client.post(ctx, "/wallet/broadcasttransaction", tx, &resp); err != nil {
		return "", apperr.Upstream(err, "broadcast transfer to %s", to)
	}
	if !resp.Result {
		return "", apperr.Upstream(fmt.Errorf("%s: %s", resp.Code, decodeMessage(resp.Message)), "broadcast transfer to %s", to)
	}
	return resp.TxID, nil
}

// sign attaches a recoverable secp256k1 signature over the transaction id.
func (f *Funder) sign(tx map[string]json.RawMessage) error {
	var txID string
	if err := json.Unmarshal(tx["txID"], &txID); err != nil || txID == "" {
		return apperr.Upstream(fmt.Errorf("missing txID"), "create transfer")
	}
	digest := common.FromHex(txID)
	if len(digest) != common.HashLength {
		return apperr.Upstream(fmt.Errorf("malformed txID %q", txID), "create transfer")
	}
	sig, err := crypto.Sign(digest, f.key)
	if err != nil {
		return fmt.Errorf("sign transfer: %w", err)
	}
	encoded, err := json.Marshal([]string{hex.EncodeToString(sig)})
	if err != nil {
		return fmt.Errorf("encode signature: %w", err)
	}
	tx["signature"] = encoded
	return nil
}

// decodeMessage turns the hex-encoded broadcast message into text when it is
// hex, and returns it untouched otherwise.
func decodeMessage(msg string) string {
	if b, err := hex.DecodeString(msg); err == nil {
		return string(b)
	}
	return msg
}

func unquote(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
