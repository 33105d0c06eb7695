// JSON-RPC chain client for EVM nodes built on the Resty HTTP client.
//
// Speaks plain JSON-RPC 2.0 (eth_estimateGas, eth_sendTransaction,
// eth_getTransactionReceipt, eth_blockNumber, eth_getBalance, eth_gasPrice,
// eth_maxPriorityFeePerGas, eth_call) against a node that holds the relay's
// sending account. Calldata is ABI-encoded with go-ethereum's abi package
// from the registry contract fragment below.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/concave-dev/anchor/internal/logging"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"
)

// registryABI is the fragment of the payload registry contract the relay
// calls. Kept minimal: one state-changing submit and one view-only verify.
const registryABI = `[
  {
    "name": "submitPayload",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "payloadType", "type": "string"},
      {"name": "payloadHash", "type": "bytes32"},
      {"name": "nonce", "type": "uint256"},
      {"name": "expiresAt", "type": "uint256"},
      {"name": "data", "type": "string"},
      {"name": "signature", "type": "bytes"}
    ],
    "outputs": [{"name": "", "type": "bool"}]
  },
  {
    "name": "verifyPayload",
    "type": "function",
    "stateMutability": "view",
    "inputs": [
      {"name": "payloadType", "type": "string"},
      {"name": "payloadHash", "type": "bytes32"},
      {"name": "nonce", "type": "uint256"},
      {"name": "expiresAt", "type": "uint256"},
      {"name": "data", "type": "string"},
      {"name": "signature", "type": "bytes"},
      {"name": "expectedSigner", "type": "address"}
    ],
    "outputs": [{"name": "", "type": "bool"}]
  }
]`

// DefaultReceiptPollInterval is how often WaitForConfirmations polls the
// node for a receipt or new head.
const DefaultReceiptPollInterval = 2 * time.Second

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error object. The message text is what the
// failure classifier inspects, so it is surfaced verbatim.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      int             `json:"id"`
}

// rpcReceipt mirrors the eth_getTransactionReceipt result fields the
// monitor needs.
type rpcReceipt struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	Status          hexutil.Uint64 `json:"status"`
	GasUsed         hexutil.Uint64 `json:"gasUsed"`
}

// RPCClient is a Client implementation speaking JSON-RPC to an EVM node.
// The node is expected to manage the relay's sending account, so
// transactions go out via eth_sendTransaction and nonce assignment stays at
// the node. This is a known coarse mitigation for nonce collisions, not a
// guarantee; the orchestrator's pacing delays reduce the contention window.
type RPCClient struct {
	http         *resty.Client
	contract     common.Address
	from         common.Address
	registry     abi.ABI
	pollInterval time.Duration
}

// NewRPCClient creates a chain client for the node at rpcURL, submitting to
// the given registry contract from the given account.
func NewRPCClient(rpcURL string, contract, from common.Address, timeout time.Duration) (*RPCClient, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}

	client := resty.New()
	client.
		SetBaseURL(rpcURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	// Request tracing through the unified logging system
	client.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		if body, ok := req.Body.(rpcRequest); ok {
			logging.Debug("Chain: RPC call %s", body.Method)
		}
		return nil
	})
	client.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logging.Debug("Chain: RPC response %d (took %v)", resp.StatusCode(), resp.Time())
		return nil
	})

	return &RPCClient{
		http:         client,
		contract:     contract,
		from:         from,
		registry:     parsed,
		pollInterval: DefaultReceiptPollInterval,
	}, nil
}

// SetPollInterval overrides the receipt poll interval. Tests shorten it.
func (c *RPCClient) SetPollInterval(d time.Duration) {
	c.pollInterval = d
}

// call performs one JSON-RPC request and unmarshals the result into out.
// Node-side errors come back as *rpcError so their message text reaches the
// failure classifier unmodified.
func (c *RPCClient) call(ctx context.Context, method string, out any, params ...any) error {
	if params == nil {
		params = []any{}
	}
	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1}

	var rpcResp rpcResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&rpcResp).
		Post("")
	if err != nil {
		return fmt.Errorf("network error calling %s: %w", method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("gateway error calling %s: status %d", method, resp.StatusCode())
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// packSubmit ABI-encodes a submitPayload call.
func (c *RPCClient) packSubmit(call SubmitCall) ([]byte, error) {
	data, err := c.registry.Pack("submitPayload",
		call.PayloadType, call.PayloadHash, call.Nonce, call.ExpiresAt,
		call.Data, call.Signature)
	if err != nil {
		return nil, fmt.Errorf("failed to encode submitPayload call: %w", err)
	}
	return data, nil
}

// txObject builds the eth_estimateGas / eth_sendTransaction parameter map.
func (c *RPCClient) txObject(calldata []byte, gasLimit uint64) map[string]any {
	tx := map[string]any{
		"from": c.from.Hex(),
		"to":   c.contract.Hex(),
		"data": hexutil.Encode(calldata),
	}
	if gasLimit > 0 {
		tx["gas"] = hexutil.EncodeUint64(gasLimit)
	}
	return tx
}

// EstimateGas asks the node for a gas estimate of the submitPayload call.
func (c *RPCClient) EstimateGas(ctx context.Context, call SubmitCall) (uint64, error) {
	calldata, err := c.packSubmit(call)
	if err != nil {
		return 0, err
	}

	var result hexutil.Uint64
	if err := c.call(ctx, "eth_estimateGas", &result, c.txObject(calldata, 0)); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// SendTransaction submits the submitPayload transaction through the node's
// managed account and returns the accepted transaction hash.
func (c *RPCClient) SendTransaction(ctx context.Context, call SubmitCall, gasLimit uint64) (common.Hash, error) {
	calldata, err := c.packSubmit(call)
	if err != nil {
		return common.Hash{}, err
	}

	var txHash common.Hash
	if err := c.call(ctx, "eth_sendTransaction", &txHash, c.txObject(calldata, gasLimit)); err != nil {
		return common.Hash{}, err
	}
	logging.Debug("Chain: sent transaction %s for payload type %s", txHash.Hex(), call.PayloadType)
	return txHash, nil
}

// GetReceipt fetches the receipt of a mined transaction. Returns
// ErrReceiptNotFound while the transaction is still pending.
func (c *RPCClient) GetReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "eth_getTransactionReceipt", &raw, txHash.Hex()); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrReceiptNotFound
	}

	var rec rpcReceipt
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}
	return &Receipt{
		TxHash:      rec.TransactionHash,
		BlockNumber: uint64(rec.BlockNumber),
		Status:      uint64(rec.Status),
		GasUsed:     uint64(rec.GasUsed),
	}, nil
}

// blockNumber returns the current chain head height.
func (c *RPCClient) blockNumber(ctx context.Context) (uint64, error) {
	var head hexutil.Uint64
	if err := c.call(ctx, "eth_blockNumber", &head); err != nil {
		return 0, err
	}
	return uint64(head), nil
}

// WaitForConfirmations polls for the receipt and then for chain head
// progress until the transaction has the requested confirmation depth.
// A transaction's inclusion block counts as its first confirmation.
func (c *RPCClient) WaitForConfirmations(ctx context.Context, txHash common.Hash, confirmations uint64) (*Receipt, error) {
	if confirmations == 0 {
		confirmations = 1
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var receipt *Receipt
	for {
		if receipt == nil {
			rec, err := c.GetReceipt(ctx, txHash)
			if err == nil {
				receipt = rec
			} else if err != ErrReceiptNotFound {
				return nil, err
			}
		}
		if receipt != nil {
			head, err := c.blockNumber(ctx)
			if err != nil {
				return nil, err
			}
			if head >= receipt.BlockNumber+confirmations-1 {
				return receipt, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for confirmations of %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// GetBalance returns the wei balance of an account at the latest block.
func (c *RPCClient) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var result hexutil.Big
	if err := c.call(ctx, "eth_getBalance", &result, addr.Hex(), "latest"); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

// GetFeeData returns current gas price and, when the node supports it, the
// suggested priority fee. A missing priority fee quote is not an error.
func (c *RPCClient) GetFeeData(ctx context.Context) (*FeeData, error) {
	var gasPrice hexutil.Big
	if err := c.call(ctx, "eth_gasPrice", &gasPrice); err != nil {
		return nil, err
	}

	fee := &FeeData{GasPrice: (*big.Int)(&gasPrice)}

	var tip hexutil.Big
	if err := c.call(ctx, "eth_maxPriorityFeePerGas", &tip); err == nil {
		fee.MaxPriorityFeePerGas = (*big.Int)(&tip)
	}
	return fee, nil
}

// VerifyPayload performs the view-only verifyPayload call against the
// registry. Off the submission path: used by operational tooling to check a
// signature against the contract's own verification logic.
func (c *RPCClient) VerifyPayload(ctx context.Context, call SubmitCall, expectedSigner common.Address) (bool, error) {
	calldata, err := c.registry.Pack("verifyPayload",
		call.PayloadType, call.PayloadHash, call.Nonce, call.ExpiresAt,
		call.Data, call.Signature, expectedSigner)
	if err != nil {
		return false, fmt.Errorf("failed to encode verifyPayload call: %w", err)
	}

	var result hexutil.Bytes
	if err := c.call(ctx, "eth_call", &result, c.txObject(calldata, 0), "latest"); err != nil {
		return false, err
	}

	out, err := c.registry.Unpack("verifyPayload", result)
	if err != nil {
		return false, fmt.Errorf("failed to decode verifyPayload result: %w", err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("unexpected verifyPayload result arity: %d", len(out))
	}
	ok, isBool := out[0].(bool)
	if !isBool {
		return false, fmt.Errorf("unexpected verifyPayload result type %T", out[0])
	}
	return ok, nil
}
