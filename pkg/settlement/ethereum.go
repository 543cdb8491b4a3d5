package settlement

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// transferGasLimit is the fixed gas cost of a simple value transfer.
const transferGasLimit = 21000

// tokenDecimals converts between native token units and wei.
const tokenDecimals = 18

// Config for the Ethereum settlement client.
type Config struct {
	// RPCEndpoint of the target network.
	RPCEndpoint string
	// ChainID for EIP-155 signing.
	ChainID int64
	// PrivateKey is the platform's signing key in hex (no 0x prefix
	// required). Its derived address is the paying identity.
	PrivateKey string
	// ConfirmTimeout bounds the wait for a transfer receipt.
	ConfirmTimeout time.Duration
}

// EthClient implements Client against an Ethereum-compatible node.
type EthClient struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	from    ethcommon.Address
	chainID *big.Int
	timeout time.Duration
}

// NewEthClient dials the RPC endpoint and binds the signing identity.
func NewEthClient(cfg Config) (*EthClient, error) {
	if cfg.PrivateKey == "" {
		return nil, ErrNotConfigured
	}

	client, err := ethclient.Dial(cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("[Settlement] failed to connect to node: %w", err)
	}

	key, err := crypto.HexToECDSA(strip0x(cfg.PrivateKey))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("[Settlement] invalid private key: %w", err)
	}

	timeout := cfg.ConfirmTimeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}

	return &EthClient{
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(cfg.ChainID),
		timeout: timeout,
	}, nil
}

// From returns the paying identity's address.
func (c *EthClient) From() string {
	return c.from.Hex()
}

// Close releases the RPC connection.
func (c *EthClient) Close() {
	c.client.Close()
}

// Transfer signs and broadcasts a native token transfer, then waits
// for the receipt. A mined-but-failed receipt is ErrTransferReverted;
// everything short of a definitive receipt is ErrNetworkFailure.
func (c *EthClient) Transfer(ctx context.Context, to string, amount decimal.Decimal) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	wei := ToWei(amount)
	toAddr := ethcommon.HexToAddress(to)

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("%w: get nonce: %v", ErrNetworkFailure, err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: suggest gas price: %v", ErrNetworkFailure, err)
	}

	tx := types.NewTransaction(nonce, toAddr, wei, transferGasLimit, gasPrice, nil)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("%w: sign transfer: %v", ErrNetworkFailure, err)
	}

	log.Info().
		Str("from", c.from.Hex()).
		Str("to", toAddr.Hex()).
		Str("amount", amount.String()).
		Str("tx", signed.Hash().Hex()).
		Msg("sending transfer")

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%w: send transfer: %v", ErrNetworkFailure, err)
	}

	receipt, err := bind.WaitMined(ctx, c.client, signed)
	if err != nil {
		return nil, fmt.Errorf("%w: wait for confirmation: %v", ErrNetworkFailure, err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, fmt.Errorf("%w: tx %s", ErrTransferReverted, signed.Hash().Hex())
	}

	log.Info().
		Str("tx", signed.Hash().Hex()).
		Uint64("block", receipt.BlockNumber.Uint64()).
		Msg("transfer confirmed")

	return &Receipt{
		Ref:         signed.Hash().Hex(),
		Block:       receipt.BlockNumber.Uint64(),
		ConfirmedAt: time.Now(),
	}, nil
}

// Balance returns the native token balance of an address.
func (c *EthClient) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	wei, err := c.client.BalanceAt(ctx, ethcommon.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: get balance: %v", ErrNetworkFailure, err)
	}
	return FromWei(wei), nil
}

// ToWei converts a native token amount to wei.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(tokenDecimals).BigInt()
}

// FromWei converts wei to a native token amount.
func FromWei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -tokenDecimals)
}

func strip0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
