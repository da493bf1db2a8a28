package skills

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillpay/x402-skills/client"
	"github.com/skillpay/x402-skills/mechanisms/evm"
	"github.com/skillpay/x402-skills/server"
)

const testAddress = "0x101Cd32b9bEEE93845Ead7Bc604a5F1873330acf"

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeChain struct {
	wei      *big.Int
	usdc     *big.Int
	calls    []ethereum.CallMsg
	txs      map[common.Hash]*types.Transaction
	pending  bool
	receipts map[common.Hash]*types.Receipt
	err      error
}

func (f *fakeChain) BalanceAt(_ context.Context, _ common.Address, _ *big.Int) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.wei, nil
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls = append(f.calls, msg)
	return common.LeftPadBytes(f.usdc.Bytes(), 32), nil
}

func (f *fakeChain) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	tx, ok := f.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, f.pending, nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func newTestSkills(chain ChainReader) *Skills {
	return New(chain, "", WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithClock(func() time.Time { return fixedNow }))
}

func newRouter(s *Skills) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/balance/:address", s.Balance)
	r.GET("/fund/:address", s.Fund)
	r.GET("/tx/:hash", s.Tx)
	r.GET("/wallet/generate", s.Wallet)
	r.POST("/send", s.Send)
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestBalance(t *testing.T) {
	wei, _ := new(big.Int).SetString("1234567000000000000", 10)
	chain := &fakeChain{wei: wei, usdc: big.NewInt(1_500_000)}
	w := serve(newRouter(newTestSkills(chain)), http.MethodGet, "/balance/"+testAddress, "")

	require.Equal(t, http.StatusOK, w.Code)
	want := client.BalanceResult{
		Address:   testAddress,
		Network:   "base",
		Balances:  client.Balances{ETH: "1.234567", USDC: "1.50"},
		Timestamp: "2025-01-02T03:04:05Z",
	}
	if diff := cmp.Diff(want, decode[client.BalanceResult](t, w)); diff != "" {
		t.Errorf("balance mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, chain.calls, 1)
	assert.Equal(t, common.HexToAddress(evm.USDCBaseAddress), *chain.calls[0].To)
	assert.Equal(t, "0x70a08231", hexutil.Encode(chain.calls[0].Data[:4]))
	assert.Equal(t, common.HexToAddress(testAddress), common.BytesToAddress(chain.calls[0].Data[4:]))
}

func TestBalanceInvalidAddress(t *testing.T) {
	chain := &fakeChain{}
	w := serve(newRouter(newTestSkills(chain)), http.MethodGet, "/balance/0x123", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid ethereum address")
	assert.Empty(t, chain.calls)
}

func TestBalanceRPCFailure(t *testing.T) {
	chain := &fakeChain{err: errors.New("connection refused")}
	w := serve(newRouter(newTestSkills(chain)), http.MethodGet, "/balance/"+testAddress, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestFund(t *testing.T) {
	chain := &fakeChain{wei: big.NewInt(0), usdc: big.NewInt(0)}
	w := serve(newRouter(newTestSkills(chain)), http.MethodGet, "/fund/"+testAddress, "")

	require.Equal(t, http.StatusOK, w.Code)
	got := decode[client.FundResult](t, w)
	assert.Equal(t, evm.ChainIDBase().Int64(), got.ChainID)
	assert.Equal(t, client.Balances{ETH: "0.000000", USDC: "0.00"}, got.Balances)
	assert.NotEmpty(t, got.Steps)
	assert.Contains(t, got.Steps[0], testAddress)
}

func signedTx(t *testing.T) (*types.Transaction, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := common.HexToAddress(testAddress)
	chainID := evm.ChainIDBase()
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(chainID), &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     7,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       GasETHTransfer,
		To:        &to,
		Value:     big.NewInt(500_000_000_000_000_000),
	})
	require.NoError(t, err)
	return tx, crypto.PubkeyToAddress(key.PublicKey)
}

func TestTx(t *testing.T) {
	tx, from := signedTx(t)

	tests := []struct {
		name        string
		pending     bool
		receipt     *types.Receipt
		wantStatus  string
		wantGasUsed string
		wantBlock   *uint64
	}{
		{
			name:        "success",
			receipt:     &types.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: 21000, BlockNumber: big.NewInt(100)},
			wantStatus:  "success",
			wantGasUsed: "21000",
			wantBlock:   func() *uint64 { b := uint64(100); return &b }(),
		},
		{
			name:        "reverted",
			receipt:     &types.Receipt{Status: types.ReceiptStatusFailed, GasUsed: 30000, BlockNumber: big.NewInt(5)},
			wantStatus:  "reverted",
			wantGasUsed: "30000",
			wantBlock:   func() *uint64 { b := uint64(5); return &b }(),
		},
		{
			name:        "pending",
			pending:     true,
			wantStatus:  "pending",
			wantGasUsed: "pending",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &fakeChain{
				txs:      map[common.Hash]*types.Transaction{tx.Hash(): tx},
				pending:  tt.pending,
				receipts: map[common.Hash]*types.Receipt{},
			}
			if tt.receipt != nil {
				chain.receipts[tx.Hash()] = tt.receipt
			}
			w := serve(newRouter(newTestSkills(chain)), http.MethodGet, "/tx/"+tx.Hash().Hex(), "")
			require.Equal(t, http.StatusOK, w.Code)

			want := client.TxResult{
				Hash:        tx.Hash().Hex(),
				Network:     "base",
				From:        from.Hex(),
				To:          common.HexToAddress(testAddress).Hex(),
				Value:       "0.500000 ETH",
				GasUsed:     tt.wantGasUsed,
				Status:      tt.wantStatus,
				BlockNumber: tt.wantBlock,
				Timestamp:   "2025-01-02T03:04:05Z",
			}
			if diff := cmp.Diff(want, decode[client.TxResult](t, w)); diff != "" {
				t.Errorf("tx mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTxErrors(t *testing.T) {
	r := newRouter(newTestSkills(&fakeChain{}))

	w := serve(r, http.MethodGet, "/tx/0xabc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid transaction hash")

	w = serve(r, http.MethodGet, "/tx/0x"+strings.Repeat("ab", 32), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWallet(t *testing.T) {
	w := serve(newRouter(newTestSkills(&fakeChain{})), http.MethodGet, "/wallet/generate", "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[client.WalletResult](t, w)
	key, err := crypto.HexToECDSA(strings.TrimPrefix(got.PrivateKey, "0x"))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), got.Address)
	assert.Equal(t, int64(8453), got.ChainID)
}

func TestSend(t *testing.T) {
	r := newRouter(newTestSkills(&fakeChain{}))

	t.Run("eth", func(t *testing.T) {
		w := serve(r, http.MethodPost, "/send", `{"to":"`+testAddress+`","amount":"0.5","token":"eth"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		got := decode[client.SendResult](t, w)
		want := client.UnsignedTx{
			To:      common.HexToAddress(testAddress).Hex(),
			Value:   "0x6f05b59d3b20000",
			Data:    "0x",
			ChainID: 8453,
			Gas:     GasETHTransfer,
		}
		if diff := cmp.Diff(want, got.Tx); diff != "" {
			t.Errorf("tx mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, "ETH", got.Token)
	})

	t.Run("usdc default token", func(t *testing.T) {
		w := serve(r, http.MethodPost, "/send", `{"to":"`+testAddress+`","amount":"2.5"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		got := decode[client.SendResult](t, w)
		assert.Equal(t, "USDC", got.Token)
		assert.Equal(t, common.HexToAddress(evm.USDCBaseAddress).Hex(), got.Tx.To)
		assert.Equal(t, "0x0", got.Tx.Value)
		assert.Equal(t, uint64(GasTokenTransfer), got.Tx.Gas)

		data, err := hexutil.Decode(got.Tx.Data)
		require.NoError(t, err)
		require.Len(t, data, 4+32+32)
		assert.Equal(t, "0xa9059cbb", hexutil.Encode(data[:4]))
		assert.Equal(t, big.NewInt(2_500_000), new(big.Int).SetBytes(data[36:]))
	})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing fields", `{"to":"` + testAddress + `"}`, "missing required fields"},
		{"bad address", `{"to":"0x1","amount":"1"}`, "invalid recipient address"},
		{"zero amount", `{"to":"` + testAddress + `","amount":"0"}`, "positive number"},
		{"bad amount", `{"to":"` + testAddress + `","amount":"lots"}`, "positive number"},
		{"bad token", `{"to":"` + testAddress + `","amount":"1","token":"DAI"}`, "ETH or USDC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, http.MethodPost, "/send", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestRegister(t *testing.T) {
	srv := server.New(server.Config{
		PayTo:  testAddress,
		Gate:   server.DegradedGate{Reason: "test"},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	chain := &fakeChain{wei: big.NewInt(0), usdc: big.NewInt(10_000)}
	require.NoError(t, Register(srv, newTestSkills(chain)))

	var names []string
	for _, skill := range srv.Skills() {
		names = append(names, skill.Name)
		assert.Equal(t, server.DefaultSkillPrice, skill.Price)
	}
	assert.Equal(t, []string{"balance", "tx", "wallet", "fund", "send"}, names)

	handler, err := srv.Handler()
	require.NoError(t, err)
	w := serve(handler, http.MethodGet, "/balance/"+testAddress, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0.01", decode[client.BalanceResult](t, w).Balances.USDC)
}
