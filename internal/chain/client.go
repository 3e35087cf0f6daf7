package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// NewClient creates a new chain client from the RPC URL. Live subscriptions need a
// websocket or IPC endpoint.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// FilterLogs returns JobEvent logs in the given range, optionally restricted to jobIDs.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	jobIDs []*big.Int,
) ([]types.Log, error) {
	query, err := JobEventQuery(addresses, jobIDs)
	if err != nil {
		return nil, err
	}
	query.FromBlock = new(big.Int).SetUint64(fromBlock)
	query.ToBlock = new(big.Int).SetUint64(toBlock)
	return c.ethClient.FilterLogs(ctx, query)
}

// SubscribeJobEvents streams new JobEvent logs into ch until the subscription ends.
func (c *Client) SubscribeJobEvents(
	ctx context.Context,
	addresses []common.Address,
	jobIDs []*big.Int,
	ch chan<- types.Log,
) (ethereum.Subscription, error) {
	query, err := JobEventQuery(addresses, jobIDs)
	if err != nil {
		return nil, err
	}
	return c.ethClient.SubscribeFilterLogs(ctx, query, ch)
}

// JobEventQuery builds a filter for JobEvent logs. An empty jobIDs matches every job.
func JobEventQuery(addresses []common.Address, jobIDs []*big.Int) (ethereum.FilterQuery, error) {
	event, err := JobEventABI()
	if err != nil {
		return ethereum.FilterQuery{}, err
	}

	topics := [][]common.Hash{{event.ID}}
	if len(jobIDs) > 0 {
		ids := make([]common.Hash, 0, len(jobIDs))
		for _, id := range jobIDs {
			ids = append(ids, common.BigToHash(id))
		}
		topics = append(topics, ids)
	}

	return ethereum.FilterQuery{
		Addresses: addresses,
		Topics:    topics,
	}, nil
}
