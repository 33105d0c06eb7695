package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/concave-dev/anchor/internal/chain"
	"github.com/ethereum/go-ethereum/common"
)

// fakeChain is a scriptable chain.Client for pipeline tests. sendErrs is
// consumed one error per SendTransaction call; a nil entry (or an exhausted
// queue) means the send succeeds with a deterministic hash.
type fakeChain struct {
	mu sync.Mutex

	sendErrs    []error
	sendCalls   int
	estimateErr error
	estimateGas uint64
	gasLimits   []uint64

	waitErr     error
	waitBlock   uint64
	waitStatus  uint64
	waitStarted chan struct{}
	waitRelease chan struct{}

	verifyOK  bool
	verifyErr error
}

func newFakeChain() *fakeChain {
	return &fakeChain{estimateGas: 100_000, waitBlock: 42, waitStatus: 1}
}

// scriptSendErrors queues per-call SendTransaction outcomes
func (f *fakeChain) scriptSendErrors(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErrs = errs
}

func (f *fakeChain) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

func (f *fakeChain) EstimateGas(ctx context.Context, call chain.SubmitCall) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.estimateGas, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, call chain.SubmitCall, gasLimit uint64) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sendCalls++
	f.gasLimits = append(f.gasLimits, gasLimit)

	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return common.Hash{}, err
		}
	}
	return common.HexToHash(fmt.Sprintf("0x%064x", f.sendCalls)), nil
}

func (f *fakeChain) WaitForConfirmations(ctx context.Context, txHash common.Hash, confirmations uint64) (*chain.Receipt, error) {
	if f.waitStarted != nil {
		close(f.waitStarted)
		f.waitStarted = nil
	}
	if f.waitRelease != nil {
		<-f.waitRelease
	}
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &chain.Receipt{TxHash: txHash, BlockNumber: f.waitBlock, Status: f.waitStatus}, nil
}

func (f *fakeChain) GetReceipt(ctx context.Context, txHash common.Hash) (*chain.Receipt, error) {
	return &chain.Receipt{TxHash: txHash, BlockNumber: f.waitBlock, Status: f.waitStatus}, nil
}

func (f *fakeChain) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return big.NewInt(1_000_000_000_000_000_000), nil
}

func (f *fakeChain) GetFeeData(ctx context.Context) (*chain.FeeData, error) {
	return &chain.FeeData{GasPrice: big.NewInt(20_000_000_000)}, nil
}

func (f *fakeChain) VerifyPayload(ctx context.Context, call chain.SubmitCall, expectedSigner common.Address) (bool, error) {
	if f.verifyErr != nil {
		return false, f.verifyErr
	}
	return f.verifyOK, nil
}
