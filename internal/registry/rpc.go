package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"
)

// rpcTimeout bounds every JSON-RPC call the builder makes.
const rpcTimeout = 12 * time.Second

// RPCClient is a minimal JSON-RPC 2.0 client for eth_call and
// eth_blockNumber. The builder runs in constrained environments where Go's
// dialer is occasionally blocked but curl is not, so transport-level failures
// retry once through a curl subprocess.
type RPCClient struct {
	url  string
	http *http.Client
}

// NewRPCClient creates a client for the given endpoint URL.
func NewRPCClient(url string) *RPCClient {
	return &RPCClient{
		url:  url,
		http: &http.Client{Timeout: rpcTimeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Call performs one JSON-RPC method call and returns the raw result.
func (c *RPCClient) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal rpc request: %w", err)
	}

	raw, err := c.post(ctx, body)
	if err != nil {
		raw, err = c.postViaCurl(ctx, body)
		if err != nil {
			return nil, err
		}
	}

	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

func (c *RPCClient) post(ctx context.Context, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc post: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rpc response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc status %d: %s", resp.StatusCode, raw)
	}
	return raw, nil
}

func (c *RPCClient) postViaCurl(ctx context.Context, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "curl", "-s",
		"-X", "POST",
		"-H", "Content-Type: application/json",
		"--data", string(body),
		c.url,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("rpc curl fallback: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("rpc curl fallback: empty response from %s", c.url)
	}
	return out, nil
}

// EthCall performs eth_call against a contract with the given calldata,
// returning the hex-encoded result.
func (c *RPCClient) EthCall(ctx context.Context, to, data string) (string, error) {
	result, err := c.Call(ctx, "eth_call", map[string]string{"to": to, "data": data}, "latest")
	if err != nil {
		return "", err
	}
	var hexResult string
	if err := json.Unmarshal(result, &hexResult); err != nil {
		return "", fmt.Errorf("decode eth_call result: %w", err)
	}
	return hexResult, nil
}

// BlockNumber returns the chain head block number.
func (c *RPCClient) BlockNumber(ctx context.Context) (int64, error) {
	result, err := c.Call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	var hexResult string
	if err := json.Unmarshal(result, &hexResult); err != nil {
		return 0, fmt.Errorf("decode eth_blockNumber result: %w", err)
	}
	n, err := parseHexUint(hexResult)
	if err != nil {
		return 0, fmt.Errorf("parse block number %q: %w", hexResult, err)
	}
	return int64(n), nil
}
