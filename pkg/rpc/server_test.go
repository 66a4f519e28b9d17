package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Clicker/internal/keys"
	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/accounts"
	"github.com/fortiblox/X1-Clicker/pkg/journal"
	"github.com/fortiblox/X1-Clicker/pkg/metrics"
	"github.com/fortiblox/X1-Clicker/pkg/svm/executor"
	"github.com/fortiblox/X1-Clicker/pkg/svm/message"
	"github.com/fortiblox/X1-Clicker/pkg/svm/programs/clicker"
)

type testServer struct {
	t      *testing.T
	server *Server
	exec   *executor.TransactionExecutor
	http   *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := accounts.NewMemoryDB()
	j, err := journal.Open(journal.DefaultConfig(filepath.Join(t.TempDir(), "journal.db")))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	m := metrics.New()
	exec, err := executor.NewTransactionExecutor(db, j, m, executor.DefaultConfig())
	require.NoError(t, err)

	s := New(DefaultConfig(), db, j, exec, m)
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	return &testServer{t: t, server: s, exec: exec, http: hs}
}

// call sends one request and decodes the response.
func (ts *testServer) call(method string, params ...interface{}) Response {
	ts.t.Helper()
	if params == nil {
		params = []interface{}{}
	}
	rawParams, err := json.Marshal(params)
	require.NoError(ts.t, err)
	body, err := json.Marshal(Request{JSONRPC: JSONRPCVersion, ID: 1, Method: method, Params: rawParams})
	require.NoError(ts.t, err)

	resp, err := http.Post(ts.http.URL, "application/json", bytes.NewReader(body))
	require.NoError(ts.t, err)
	defer resp.Body.Close()

	var out Response
	require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// value extracts result.value as a generic map.
func value(t *testing.T, resp Response) map[string]interface{} {
	t.Helper()
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok, "%#v", resp.Result)
	v, _ := result["value"].(map[string]interface{})
	return v
}

func (ts *testServer) sendTx(kp *keys.Keypair, ix message.Instruction) Response {
	msg, err := message.NewMessage(kp.PublicKey(), []message.Instruction{ix}, ts.exec.LatestBlockhash())
	require.NoError(ts.t, err)
	tx, err := message.NewTransaction(msg, kp)
	require.NoError(ts.t, err)
	return ts.call("sendTransaction", base58.Encode(tx.Serialize()))
}

func TestClusterMethods(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.call("getHealth")
	require.Nil(t, resp.Error)
	require.Equal(t, "ok", resp.Result)

	resp = ts.call("getSlot")
	require.Nil(t, resp.Error)
	require.Equal(t, float64(0), resp.Result)

	resp = ts.call("getVersion")
	require.Nil(t, resp.Error)
	require.Equal(t, SolanaCore, resp.Result.(map[string]interface{})["solana-core"])

	resp = ts.call("getMinimumBalanceForRentExemption", 20)
	require.Nil(t, resp.Error)
	require.Equal(t, float64(executor.MinimumBalance(20)), resp.Result)

	resp = ts.call("noSuchMethod")
	require.NotNil(t, resp.Error)
	require.Equal(t, MethodNotFound, resp.Error.Code)

	ts.server.SetHealthy(false)
	resp = ts.call("getHealth")
	require.Equal(t, NodeUnhealthy, resp.Error.Code)
}

func TestClickerOverRPC(t *testing.T) {
	ts := newTestServer(t)
	kp, err := keys.Generate(nil)
	require.NoError(t, err)
	user := kp.PublicKey().String()

	resp := ts.call("requestAirdrop", user, executor.LamportsPerSOL)
	require.Nil(t, resp.Error)

	resp = ts.call("getBalance", user)
	require.Equal(t, float64(executor.LamportsPerSOL), resp.Result.(map[string]interface{})["value"])

	resp = ts.call("getUserState", user)
	require.Nil(t, resp.Error)
	require.Nil(t, resp.Result.(map[string]interface{})["value"])

	ix, err := clicker.NewInitUserInstruction(types.ClickerProgramAddr, kp.PublicKey())
	require.NoError(t, err)
	resp = ts.sendTx(kp, ix)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	meta := result["meta"].(map[string]interface{})
	require.Nil(t, meta["err"])
	initSig := result["signature"].(string)

	click, err := clicker.NewClickInstruction(types.ClickerProgramAddr, kp.PublicKey())
	require.NoError(t, err)
	resp = ts.sendTx(kp, click)
	require.Nil(t, resp.Error)

	state := value(t, ts.call("getUserState", user))
	require.Equal(t, float64(1), state["clickBalance"])
	require.Equal(t, float64(1), state["valuePerClick"])

	addr := ts.call("getUserStateAddress", user)
	require.Nil(t, addr.Error)
	require.Equal(t, state["address"], addr.Result.(map[string]interface{})["address"])

	info := value(t, ts.call("getAccountInfo", state["address"], map[string]string{"encoding": "base64+zstd"}))
	require.Equal(t, types.ClickerProgramAddr.String(), info["owner"])
	require.Equal(t, float64(clicker.UserStateSize), info["space"])
	data := info["data"].([]interface{})
	raw, err := DecodeAccountData(data[0].(string), Encoding(data[1].(string)))
	require.NoError(t, err)
	s, err := clicker.UnmarshalUserState(raw)
	require.NoError(t, err)
	require.Equal(t, uint64(1), s.ClickBalance)

	// An unaffordable upgrade executes, fails and is reported in meta.err.
	upgrade, err := clicker.NewUpgradeInstruction(types.ClickerProgramAddr, kp.PublicKey(), 0)
	require.NoError(t, err)
	resp = ts.sendTx(kp, upgrade)
	require.Nil(t, resp.Error)
	failed := resp.Result.(map[string]interface{})
	txErr := failed["meta"].(map[string]interface{})["err"].(map[string]interface{})
	require.Equal(t, float64(0), txErr["custom"])

	resp = ts.call("getSignatureStatuses", []string{initSig, failed["signature"].(string), types.Signature{1}.String()})
	require.Nil(t, resp.Error)
	statuses := resp.Result.(map[string]interface{})["value"].([]interface{})
	require.Len(t, statuses, 3)
	require.Nil(t, statuses[0].(map[string]interface{})["err"])
	require.NotNil(t, statuses[1].(map[string]interface{})["err"])
	require.Nil(t, statuses[2])

	resp = ts.call("getSignaturesForAddress", user, map[string]int{"limit": 2})
	require.Nil(t, resp.Error)
	history := resp.Result.([]interface{})
	require.Len(t, history, 2)
	require.Equal(t, failed["signature"], history[0].(map[string]interface{})["signature"])

	resp = ts.call("getTransaction", initSig)
	require.Nil(t, resp.Error)
	tx := resp.Result.(map[string]interface{})
	require.Equal(t, "transaction", tx["kind"])
	logs := tx["meta"].(map[string]interface{})["logMessages"].([]interface{})
	require.Contains(t, logs, "Program log: Instruction: InitUser")
}

func TestSendTransactionRejections(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.call("sendTransaction", "not-base58-0OIl")
	require.Equal(t, InvalidParams, resp.Error.Code)

	resp = ts.call("sendTransaction", base58.Encode([]byte{1, 2, 3}))
	require.Equal(t, SendTransactionPreflightFailure, resp.Error.Code)

	kp, err := keys.Generate(nil)
	require.NoError(t, err)
	click, err := clicker.NewClickInstruction(types.ClickerProgramAddr, kp.PublicKey())
	require.NoError(t, err)
	msg, err := message.NewMessage(kp.PublicKey(), []message.Instruction{click}, ts.exec.LatestBlockhash())
	require.NoError(t, err)
	tx, err := message.NewTransaction(msg, kp)
	require.NoError(t, err)
	tx.Signatures[0][5] ^= 1
	resp = ts.call("sendTransaction", base58.Encode(tx.Serialize()))
	require.Equal(t, TransactionSignatureVerificationFailure, resp.Error.Code)

	resp = ts.call("requestAirdrop", kp.PublicKey().String(), 0)
	require.Equal(t, InvalidParams, resp.Error.Code)
}

func TestBatchAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	body := `[{"jsonrpc":"2.0","id":1,"method":"getSlot"},{"jsonrpc":"1.0","id":2,"method":"getSlot"}]`
	resp, err := http.Post(ts.http.URL, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out []Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 2)
	require.Nil(t, out[0].Error)
	require.Equal(t, InvalidRequest, out[1].Error.Code)

	mresp, err := http.Get(ts.http.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	require.Equal(t, http.StatusOK, mresp.StatusCode)
}

func TestEncodingRoundTrip(t *testing.T) {
	data := []byte("clicker state bytes")
	for _, enc := range []Encoding{EncodingBase58, EncodingBase64, EncodingBase64Zstd} {
		encoded, err := EncodeAccountData(data, enc)
		require.NoError(t, err)
		pair := encoded.([]string)
		decoded, err := DecodeAccountData(pair[0], Encoding(pair[1]))
		require.NoError(t, err)
		require.Equal(t, data, decoded)
	}
	require.Equal(t, []byte("ick"), ApplyDataSlice(data, &DataSlice{Offset: 2, Length: 3}))
	_, ok := ParseEncoding("jsonParsed")
	require.False(t, ok)
}
