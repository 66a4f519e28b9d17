package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mr-tron/base58"

	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/svm/message"
)

// Client calls a clicker ledger's JSON-RPC endpoint.
type Client struct {
	httpClient *http.Client
	url        string
}

// NewClient creates a client for the endpoint at url.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
	}
}

// clientResponse is a response whose result is decoded lazily.
type clientResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// call makes a JSON-RPC call. RPC-level failures are returned as *RPCError.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	body, err := json.Marshal(Request{JSONRPC: JSONRPCVersion, ID: 1, Method: method, Params: rawParams})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp clientResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// contextValue decodes the value half of a ResponseWithContext.
type contextValue[T any] struct {
	Context Context `json:"context"`
	Value   T       `json:"value"`
}

// GetSlot returns the ledger slot.
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	err := c.call(ctx, "getSlot", nil, &slot)
	return slot, err
}

// GetHealth returns nil if the node reports healthy.
func (c *Client) GetHealth(ctx context.Context) error {
	return c.call(ctx, "getHealth", nil, nil)
}

// GetBalance returns an account's lamports.
func (c *Client) GetBalance(ctx context.Context, pubkey types.Pubkey) (uint64, error) {
	var out contextValue[uint64]
	err := c.call(ctx, "getBalance", []interface{}{pubkey.String()}, &out)
	return out.Value, err
}

// GetLatestBlockhash returns the blockhash to sign new transactions against.
func (c *Client) GetLatestBlockhash(ctx context.Context) (types.Hash, error) {
	var out contextValue[LatestBlockhash]
	if err := c.call(ctx, "getLatestBlockhash", nil, &out); err != nil {
		return types.Hash{}, err
	}
	return types.HashFromBase58(out.Value.Blockhash)
}

// GetUserState returns a user's record, or nil if it does not exist.
func (c *Client) GetUserState(ctx context.Context, user types.Pubkey) (*UserStateInfo, error) {
	var out contextValue[*UserStateInfo]
	err := c.call(ctx, "getUserState", []interface{}{user.String()}, &out)
	return out.Value, err
}

// RequestAirdrop asks the faucet for lamports.
func (c *Client) RequestAirdrop(ctx context.Context, to types.Pubkey, lamports uint64) (string, error) {
	var sig string
	err := c.call(ctx, "requestAirdrop", []interface{}{to.String(), lamports}, &sig)
	return sig, err
}

// SendTransaction submits a signed transaction and returns its execution
// outcome.
func (c *Client) SendTransaction(ctx context.Context, tx *message.Transaction) (*SendTransactionResult, error) {
	var out SendTransactionResult
	encoded := base58.Encode(tx.Serialize())
	if err := c.call(ctx, "sendTransaction", []interface{}{encoded, SendTransactionConfig{Encoding: EncodingBase58}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSignaturesForAddress returns an address's history, newest first.
func (c *Client) GetSignaturesForAddress(ctx context.Context, addr types.Pubkey, limit int) ([]SignatureInfo, error) {
	var out []SignatureInfo
	err := c.call(ctx, "getSignaturesForAddress", []interface{}{addr.String(), SignaturesForAddressConfig{Limit: limit}}, &out)
	return out, err
}

// GetTransaction returns a journaled transaction, or nil if unknown.
func (c *Client) GetTransaction(ctx context.Context, sig string) (*TransactionResponse, error) {
	var out *TransactionResponse
	err := c.call(ctx, "getTransaction", []interface{}{sig}, &out)
	return out, err
}
