package tron

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tronfunder/internal/apperr"
)

const usdtContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

// fakeNode emulates the handful of wallet endpoints the client uses.
type fakeNode struct {
	mu         sync.Mutex
	balances   map[string]int64
	receipts   map[string]string
	created    []map[string]any
	broadcasts []map[string]any
	apiKeys    []string
	rejectTx   bool
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		balances: make(map[string]int64),
		receipts: make(map[string]string),
	}
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.apiKeys = append(n.apiKeys, r.Header.Get(apiKeyHeader))

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	switch r.URL.Path {
	case "/wallet/getaccount":
		addr, _ := body["address"].(string)
		bal, ok := n.balances[addr]
		if !ok {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"address": addr, "balance": bal})
	case "/wallet/createtransaction":
		n.created = append(n.created, body)
		sum := sha256.Sum256([]byte(body["to_address"].(string)))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"visible":      true,
			"txID":         hex.EncodeToString(sum[:]),
			"raw_data_hex": "0a02",
			"raw_data":     map[string]any{"expiration": 1},
		})
	case "/wallet/broadcasttransaction":
		n.broadcasts = append(n.broadcasts, body)
		if n.rejectTx {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code":    "SIGERROR",
				"message": hex.EncodeToString([]byte("validate signature error")),
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": true, "txid": body["txID"]})
	case "/wallet/gettransactioninfobyid":
		id, _ := body["value"].(string)
		result, ok := n.receipts[id]
		if !ok {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          id,
			"blockNumber": 100,
			"receipt":     map[string]any{"result": result},
		})
	case "/wallet/getnowblock":
		_, _ = w.Write([]byte(`{"blockID":"0000abc"}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, node http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{NodeURL: srv.URL + "/", APIKey: "key-1"})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	require.Error(t, err)
}

func TestReadBalance(t *testing.T) {
	node := newFakeNode()
	node.balances[usdtContract] = 10_500_000
	c := newTestClient(t, node)

	sun, err := c.ReadBalance(context.Background(), usdtContract)
	require.NoError(t, err)
	assert.Equal(t, int64(10_500_000), sun)
	assert.Equal(t, "key-1", node.apiKeys[0])

	// Unactivated accounts come back as an empty object.
	sun, err = c.ReadBalance(context.Background(), "TUnknown")
	require.NoError(t, err)
	assert.Zero(t, sun)
}

func TestReadBalanceUpstreamFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	_, err := c.ReadBalance(context.Background(), usdtContract)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Contains(t, err.Error(), "status 429")
}

func TestReadBalanceAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Error":"invalid address"}`))
	}))

	_, err := c.ReadBalance(context.Background(), "bogus")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Contains(t, err.Error(), "invalid address")
}

func TestTransactionSucceeded(t *testing.T) {
	node := newFakeNode()
	node.receipts["ok"] = "SUCCESS"
	node.receipts["reverted"] = "REVERT"
	c := newTestClient(t, node)
	ctx := context.Background()

	ok, err := c.TransactionSucceeded(ctx, "ok")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.TransactionSucceeded(ctx, "reverted")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.TransactionSucceeded(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPing(t *testing.T) {
	c := newTestClient(t, newFakeNode())
	require.NoError(t, c.Ping(context.Background()))
}

func TestFunderSubmitTransferSignsWithFunderKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	node := newFakeNode()
	c := newTestClient(t, node)

	funder, err := NewFunder(c, "0x"+hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)
	assert.True(t, IsValidAddress(funder.Address()))

	txID, err := funder.SubmitTransfer(context.Background(), usdtContract, TRXToSun(decimal.NewFromInt(16)))
	require.NoError(t, err)
	require.NotEmpty(t, txID)

	require.Len(t, node.created, 1)
	assert.Equal(t, funder.Address(), node.created[0]["owner_address"])
	assert.Equal(t, usdtContract, node.created[0]["to_address"])
	assert.InDelta(t, 16_000_000, node.created[0]["amount"], 0)

	require.Len(t, node.broadcasts, 1)
	sigs, ok := node.broadcasts[0]["signature"].([]any)
	require.True(t, ok)
	require.Len(t, sigs, 1)
	sig, err := hex.DecodeString(sigs[0].(string))
	require.NoError(t, err)

	digest, err := hex.DecodeString(txID)
	require.NoError(t, err)
	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, funder.Address(), AddressFromPublicKey(*pub))
}

func TestFunderSubmitTransferRejected(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	node := newFakeNode()
	node.rejectTx = true
	funder, err := NewFunder(newTestClient(t, node), hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)

	_, err = funder.SubmitTransfer(context.Background(), usdtContract, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Contains(t, err.Error(), "validate signature error")
}

func TestFunderSubmitTransferValidatesInput(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	node := newFakeNode()
	funder, err := NewFunder(newTestClient(t, node), hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)

	_, err = funder.SubmitTransfer(context.Background(), usdtContract, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = funder.SubmitTransfer(context.Background(), "T123", 1)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Empty(t, node.created)
}

func TestNewFunderRejectsBadKey(t *testing.T) {
	c, err := NewClient(ClientConfig{NodeURL: DefaultNodeURL})
	require.NoError(t, err)
	_, err = NewFunder(c, "not-a-key")
	require.Error(t, err)
}
