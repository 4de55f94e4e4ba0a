package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/stacksats/dca/internal/wallet"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

const dcaABIJSON = `[
	{"constant":false,"inputs":[{"name":"amount","type":"uint256"}],"name":"deposit","outputs":[],"type":"function"},
	{"constant":false,"inputs":[{"name":"amount","type":"uint256"}],"name":"buyBTC","outputs":[],"type":"function"}
]`

// Submitter sends prepared calls through a smart account. Satisfied by
// wallet.Client.
type Submitter interface {
	SubmitCalls(ctx context.Context, smartAccount string, calls []wallet.Call) (string, error)
}

// Client executes the on-chain legs of a DCA purchase: a USDC balance read
// against the RPC node, and deposit/buy transactions submitted through the
// wallet service.
type Client struct {
	eth       *ethclient.Client
	submitter Submitter
	contract  common.Address
	erc20ABI  abi.ABI
	dcaABI    abi.ABI
	logger    *logrus.Logger
}

func NewClient(rpcURL, dcaContract string, submitter Submitter, logger *logrus.Logger) (*Client, error) {
	if !common.IsHexAddress(dcaContract) {
		return nil, fmt.Errorf("invalid DCA contract address: %s", dcaContract)
	}

	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("fail to dial rpc node: %w", err)
	}

	erc20, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("fail to parse erc20 abi: %w", err)
	}
	dca, err := abi.JSON(strings.NewReader(dcaABIJSON))
	if err != nil {
		return nil, fmt.Errorf("fail to parse dca abi: %w", err)
	}

	return &Client{
		eth:       eth,
		submitter: submitter,
		contract:  common.HexToAddress(dcaContract),
		erc20ABI:  erc20,
		dcaABI:    dca,
		logger:    logger,
	}, nil
}

// USDCBalance reads the funding asset balance of the account, in minor units.
func (c *Client) USDCBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	data, err := c.erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("fail to pack balanceOf: %w", err)
	}

	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &USDC.Address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}

	out, err := c.erc20ABI.Unpack("balanceOf", result)
	if err != nil {
		return nil, fmt.Errorf("fail to unpack balanceOf result: %w", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", out[0])
	}
	return balance, nil
}

// Deposit moves the required USDC amount from the smart account into the DCA
// contract. The approve and deposit calls are submitted as one batch so they
// fail as a unit.
func (c *Client) Deposit(ctx context.Context, smartAccount string, amount *big.Int) (string, error) {
	approveData, err := c.erc20ABI.Pack("approve", c.contract, amount)
	if err != nil {
		return "", fmt.Errorf("fail to pack approve: %w", err)
	}
	depositData, err := c.dcaABI.Pack("deposit", amount)
	if err != nil {
		return "", fmt.Errorf("fail to pack deposit: %w", err)
	}

	txHash, err := c.submitter.SubmitCalls(ctx, smartAccount, []wallet.Call{
		{To: USDC.Address.Hex(), Data: hexutil.Encode(approveData)},
		{To: c.contract.Hex(), Data: hexutil.Encode(depositData)},
	})
	if err != nil {
		return "", fmt.Errorf("deposit submission failed: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"account": smartAccount,
		"amount":  amount.String(),
		"tx_hash": txHash,
	}).Info("deposited USDC to DCA contract")

	return txHash, nil
}

// BuyBTC swaps the staged USDC amount into the target asset.
func (c *Client) BuyBTC(ctx context.Context, smartAccount string, amount *big.Int, target Asset) (string, error) {
	buyData, err := c.dcaABI.Pack("buyBTC", amount)
	if err != nil {
		return "", fmt.Errorf("fail to pack buyBTC: %w", err)
	}

	txHash, err := c.submitter.SubmitCalls(ctx, smartAccount, []wallet.Call{
		{To: c.contract.Hex(), Data: hexutil.Encode(buyData)},
	})
	if err != nil {
		return "", fmt.Errorf("swap submission failed: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"account": smartAccount,
		"amount":  amount.String(),
		"target":  target.Symbol,
		"tx_hash": txHash,
	}).Info("executed buy")

	return txHash, nil
}
