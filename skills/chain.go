package skills

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/skillpay/x402-skills/mechanisms/evm"
)

// ChainReader is the read-only chain access the skills need.
// *ethclient.Client satisfies it.
type ChainReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ ChainReader = (*ethclient.Client)(nil)

// Dial connects to an RPC endpoint
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc %s: %w", rpcURL, err)
	}
	return client, nil
}

var (
	balanceOfABI = mustParseABI(evm.ERC20BalanceOfABI)
	transferABI  = mustParseABI(evm.ERC20TransferABI)
)

func mustParseABI(data []byte) abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		panic(fmt.Sprintf("invalid erc20 abi: %v", err))
	}
	return parsed
}

// tokenBalance calls balanceOf(account) on token
func tokenBalance(ctx context.Context, reader ChainReader, token, account common.Address) (*big.Int, error) {
	data, err := balanceOfABI.Pack(evm.FunctionBalanceOf, account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call data: %w", err)
	}

	result, err := reader.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get token balance: %w", err)
	}

	values, err := balanceOfABI.Unpack(evm.FunctionBalanceOf, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack token balance: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result %T", values[0])
	}
	return balance, nil
}
