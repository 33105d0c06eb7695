package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// rpcStub is an httptest-backed JSON-RPC node with per-method canned
// responses. Responses are raw JSON fragments for the "result" field, or an
// error object when prefixed with "ERR:".
type rpcStub struct {
	mu        sync.Mutex
	responses map[string][]string
	calls     map[string]int
	server    *httptest.Server
}

func newRPCStub() *rpcStub {
	stub := &rpcStub{
		responses: make(map[string][]string),
		calls:     make(map[string]int),
	}
	stub.server = httptest.NewServer(http.HandlerFunc(stub.handle))
	return stub
}

// respond queues responses for a method; the last one repeats once the queue
// drains
func (s *rpcStub) respond(method string, results ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[method] = results
}

func (s *rpcStub) callCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *rpcStub) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string `json:"method"`
		ID     int    `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls[req.Method]++
	queue := s.responses[req.Method]
	var result string
	switch {
	case len(queue) == 0:
		result = "null"
	case len(queue) == 1:
		result = queue[0]
	default:
		result = queue[0]
		s.responses[req.Method] = queue[1:]
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if msg, isErr := strings.CutPrefix(result, "ERR:"); isErr {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": req.ID,
			"error": map[string]any{"code": -32000, "message": msg},
		})
		return
	}
	w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
}

// testClient builds an RPCClient against the stub with a fast poll interval
func testClient(t *testing.T, stub *rpcStub) *RPCClient {
	t.Helper()

	client, err := NewRPCClient(stub.server.URL,
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		5*time.Second)
	if err != nil {
		t.Fatalf("NewRPCClient() error = %v", err)
	}
	client.SetPollInterval(5 * time.Millisecond)
	return client
}

// testCall builds a well-formed submitPayload call
func testCall() SubmitCall {
	return SubmitCall{
		PayloadType: "oracle_update",
		PayloadHash: common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000001"),
		Nonce:       big.NewInt(7),
		ExpiresAt:   big.NewInt(1900000000),
		Data:        `{"price":"42.5"}`,
		Signature:   []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

// TestEstimateGas tests gas estimation decoding
func TestEstimateGas(t *testing.T) {
	stub := newRPCStub()
	defer stub.server.Close()
	stub.respond("eth_estimateGas", `"0x186a0"`)

	got, err := testClient(t, stub).EstimateGas(context.Background(), testCall())
	if err != nil {
		t.Fatalf("EstimateGas() error = %v", err)
	}
	if got != 100_000 {
		t.Errorf("EstimateGas() = %d, want 100000", got)
	}
}

// TestSendTransaction tests transaction submission and hash decoding
func TestSendTransaction(t *testing.T) {
	stub := newRPCStub()
	defer stub.server.Close()

	wantHash := "0x00000000000000000000000000000000000000000000000000000000000000aa"
	stub.respond("eth_sendTransaction", `"`+wantHash+`"`)

	got, err := testClient(t, stub).SendTransaction(context.Background(), testCall(), 120_000)
	if err != nil {
		t.Fatalf("SendTransaction() error = %v", err)
	}
	if got != common.HexToHash(wantHash) {
		t.Errorf("SendTransaction() = %s, want %s", got.Hex(), wantHash)
	}
}

// TestSendTransaction_NodeError tests that the node's error message reaches
// the caller verbatim for classification
func TestSendTransaction_NodeError(t *testing.T) {
	stub := newRPCStub()
	defer stub.server.Close()
	stub.respond("eth_sendTransaction", "ERR:insufficient funds for gas * price + value")

	_, err := testClient(t, stub).SendTransaction(context.Background(), testCall(), 120_000)
	if err == nil {
		t.Fatal("SendTransaction() error = nil, want node error")
	}
	if !strings.Contains(err.Error(), "insufficient funds") {
		t.Errorf("error = %q, should surface the node's message", err.Error())
	}
}

// TestGetReceipt tests receipt decoding and the pending-transaction case
func TestGetReceipt(t *testing.T) {
	stub := newRPCStub()
	defer stub.server.Close()

	txHash := common.HexToHash("0xbb")
	stub.respond("eth_getTransactionReceipt",
		`{"transactionHash":"0x00000000000000000000000000000000000000000000000000000000000000bb","blockNumber":"0x2a","status":"0x1","gasUsed":"0x5208"}`)

	rec, err := testClient(t, stub).GetReceipt(context.Background(), txHash)
	if err != nil {
		t.Fatalf("GetReceipt() error = %v", err)
	}
	if rec.BlockNumber != 42 {
		t.Errorf("BlockNumber = %d, want 42", rec.BlockNumber)
	}
	if rec.Reverted() {
		t.Error("Reverted() = true for status 0x1, want false")
	}
	if rec.GasUsed != 21000 {
		t.Errorf("GasUsed = %d, want 21000", rec.GasUsed)
	}
}

// TestGetReceipt_Pending tests ErrReceiptNotFound while unmined
func TestGetReceipt_Pending(t *testing.T) {
	stub := newRPCStub()
	defer stub.server.Close()
	stub.respond("eth_getTransactionReceipt", "null")

	_, err := testClient(t, stub).GetReceipt(context.Background(), common.HexToHash("0xcc"))
	if err != ErrReceiptNotFound {
		t.Errorf("GetReceipt() error = %v, want ErrReceiptNotFound", err)
	}
}

// TestWaitForConfirmations tests polling until the receipt appears and the
// head advances to the requested depth
func TestWaitForConfirmations(t *testing.T) {
	stub := newRPCStub()
	defer stub.server.Close()

	// Receipt missing on the first poll, mined in block 10 afterwards
	stub.respond("eth_getTransactionReceipt",
		"null",
		`{"transactionHash":"0x00000000000000000000000000000000000000000000000000000000000000dd","blockNumber":"0xa","status":"0x1","gasUsed":"0x5208"}`)
	// Head at 10 then 11: two confirmations need head >= 11
	stub.respond("eth_blockNumber", `"0xa"`, `"0xb"`)

	rec, err := testClient(t, stub).WaitForConfirmations(context.Background(), common.HexToHash("0xdd"), 2)
	if err != nil {
		t.Fatalf("WaitForConfirmations() error = %v", err)
	}
	if rec.BlockNumber != 10 {
		t.Errorf("BlockNumber = %d, want 10", rec.BlockNumber)
	}
	if stub.callCount("eth_getTransactionReceipt") < 2 {
		t.Errorf("receipt polls = %d, want at least 2", stub.callCount("eth_getTransactionReceipt"))
	}
}

// TestWaitForConfirmations_ContextCancelled tests that cancellation
// terminates the poll loop
func TestWaitForConfirmations_ContextCancelled(t *testing.T) {
	stub := newRPCStub()
	defer stub.server.Close()
	stub.respond("eth_getTransactionReceipt", "null")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := testClient(t, stub).WaitForConfirmations(ctx, common.HexToHash("0xee"), 1)
	if err == nil {
		t.Fatal("WaitForConfirmations() error = nil, want timeout")
	}
	if !strings.Contains(err.Error(), "timeout waiting for confirmations") {
		t.Errorf("error = %q, want confirmation timeout", err.Error())
	}
}

// TestGetBalance tests wei balance decoding
func TestGetBalance(t *testing.T) {
	stub := newRPCStub()
	defer stub.server.Close()
	stub.respond("eth_getBalance", `"0xde0b6b3a7640000"`) // 1 ether

	got, err := testClient(t, stub).GetBalance(context.Background(),
		common.HexToAddress("0x1111111111111111111111111111111111111111"))
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	want := new(big.Int).SetUint64(1_000_000_000_000_000_000)
	if got.Cmp(want) != 0 {
		t.Errorf("GetBalance() = %s, want %s", got, want)
	}
}

// TestGetFeeData tests fee quotes with and without a priority fee
func TestGetFeeData(t *testing.T) {
	stub := newRPCStub()
	defer stub.server.Close()
	stub.respond("eth_gasPrice", `"0x4a817c800"`) // 20 gwei
	stub.respond("eth_maxPriorityFeePerGas", `"0x3b9aca00"`)

	fee, err := testClient(t, stub).GetFeeData(context.Background())
	if err != nil {
		t.Fatalf("GetFeeData() error = %v", err)
	}
	if fee.GasPrice.Uint64() != 20_000_000_000 {
		t.Errorf("GasPrice = %s, want 20000000000", fee.GasPrice)
	}
	if fee.MaxPriorityFeePerGas == nil || fee.MaxPriorityFeePerGas.Uint64() != 1_000_000_000 {
		t.Errorf("MaxPriorityFeePerGas = %v, want 1000000000", fee.MaxPriorityFeePerGas)
	}
}

// TestGetFeeData_NoPriorityFee tests graceful handling of nodes without
// eth_maxPriorityFeePerGas
func TestGetFeeData_NoPriorityFee(t *testing.T) {
	stub := newRPCStub()
	defer stub.server.Close()
	stub.respond("eth_gasPrice", `"0x4a817c800"`)
	stub.respond("eth_maxPriorityFeePerGas", "ERR:the method eth_maxPriorityFeePerGas does not exist")

	fee, err := testClient(t, stub).GetFeeData(context.Background())
	if err != nil {
		t.Fatalf("GetFeeData() error = %v", err)
	}
	if fee.MaxPriorityFeePerGas != nil {
		t.Errorf("MaxPriorityFeePerGas = %v, want nil", fee.MaxPriorityFeePerGas)
	}
}

// TestVerifyPayload tests the view-only registry call and bool decoding
func TestVerifyPayload(t *testing.T) {
	stub := newRPCStub()
	defer stub.server.Close()
	stub.respond("eth_call",
		`"0x0000000000000000000000000000000000000000000000000000000000000001"`,
		`"0x0000000000000000000000000000000000000000000000000000000000000000"`)

	client := testClient(t, stub)
	signer := common.HexToAddress("0x3333333333333333333333333333333333333333")

	ok, err := client.VerifyPayload(context.Background(), testCall(), signer)
	if err != nil {
		t.Fatalf("VerifyPayload() error = %v", err)
	}
	if !ok {
		t.Error("VerifyPayload() = false, want true")
	}

	ok, err = client.VerifyPayload(context.Background(), testCall(), signer)
	if err != nil {
		t.Fatalf("VerifyPayload() error = %v", err)
	}
	if ok {
		t.Error("VerifyPayload() = true, want false for a rejected signature")
	}
}

// TestVerifyPayload_NodeError tests that eth_call failures surface
func TestVerifyPayload_NodeError(t *testing.T) {
	stub := newRPCStub()
	defer stub.server.Close()
	stub.respond("eth_call", "ERR:execution reverted")

	_, err := testClient(t, stub).VerifyPayload(context.Background(), testCall(),
		common.HexToAddress("0x3333333333333333333333333333333333333333"))
	if err == nil || !strings.Contains(err.Error(), "execution reverted") {
		t.Errorf("VerifyPayload() error = %v, want node revert", err)
	}
}
