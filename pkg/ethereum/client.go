// Package ethereum reads deployed runtime bytecode from an Ethereum node.
package ethereum

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/solfixes/solfixes/pkg/config"
)

// Client represents an Ethereum client
type Client struct {
	config *config.EthereumConfig
	client *ethclient.Client
	logger *zap.Logger
}

// NewClient creates a new Ethereum client
func NewClient(cfg *config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	logger.Info("Connected to Ethereum",
		zap.String("rpc_url", cfg.RPCURL))

	return &Client{
		config: cfg,
		client: client,
		logger: logger.Named("ethereum"),
	}, nil
}

// RuntimeCode fetches the runtime bytecode deployed at an address, hex
// encoded with the 0x prefix. An address without code yields "0x".
func (c *Client) RuntimeCode(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid deployment address %q", address)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	code, err := c.client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch code at %s: %w", address, err)
	}
	return hexutil.Encode(code), nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.client.Close()
}
