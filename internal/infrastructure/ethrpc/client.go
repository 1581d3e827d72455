package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"provindex/internal/domain"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/semaphore"
)

// RequestObserver is notified after every JSON-RPC round trip.
type RequestObserver interface {
	ObserveRPC(method string, duration time.Duration, err error)
}

type Client struct {
	url        string
	httpClient *http.Client
	idCounter  uint64
	inFlight   *semaphore.Weighted
	observer   RequestObserver
}

type Config struct {
	URL         string
	Timeout     time.Duration
	MaxInFlight int64
	Observer    RequestObserver
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rpc url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 32
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		inFlight:   semaphore.NewWeighted(cfg.MaxInFlight),
		observer:   cfg.Observer,
	}, nil
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", []any{}, &result); err != nil {
		return 0, err
	}
	return hexutil.DecodeUint64(result)
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_chainId", []any{}, &result); err != nil {
		return 0, err
	}
	return hexutil.DecodeUint64(result)
}

// LogQuery mirrors the eth_getLogs filter object. Topics follow the node's positional
// matching rules: a nil position matches anything.
type LogQuery struct {
	Address   string
	Topics    [][]string
	FromBlock uint64
	ToBlock   uint64
}

// Log is a contract log returned by eth_getLogs.
type Log struct {
	Address     string
	Topics      []string
	Data        []byte
	BlockNumber uint64
	BlockHash   string
	TxHash      string
	TxIndex     uint64
	LogIndex    uint64
	Removed     bool
}

func (c *Client) FetchLogs(ctx context.Context, query LogQuery) ([]Log, error) {
	filter := map[string]any{
		"fromBlock": hexutil.EncodeUint64(query.FromBlock),
		"toBlock":   hexutil.EncodeUint64(query.ToBlock),
	}
	if query.Address != "" {
		filter["address"] = strings.ToLower(query.Address)
	}
	if len(query.Topics) > 0 {
		topics := make([]any, len(query.Topics))
		for i, position := range query.Topics {
			switch len(position) {
			case 0:
				topics[i] = nil
			case 1:
				topics[i] = strings.ToLower(position[0])
			default:
				topics[i] = position
			}
		}
		filter["topics"] = topics
	}

	var result []rpcLog
	if err := c.call(ctx, "eth_getLogs", []any{filter}, &result); err != nil {
		return nil, err
	}

	logs := make([]Log, 0, len(result))
	for _, log := range result {
		decoded, err := log.decode()
		if err != nil {
			return nil, fmt.Errorf("log %s: %w", log.TxHash, err)
		}
		logs = append(logs, decoded)
	}
	return logs, nil
}

// Call executes a read-only contract call against the latest block.
func (c *Client) Call(ctx context.Context, to string, data []byte) ([]byte, error) {
	msg := map[string]any{
		"to":   strings.ToLower(to),
		"data": hexutil.Encode(data),
	}
	var result string
	if err := c.call(ctx, "eth_call", []any{msg, "latest"}, &result); err != nil {
		return nil, err
	}
	return hexutil.Decode(result)
}

// TransactionReceipt returns false when the node does not know the transaction.
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (domain.Receipt, bool, error) {
	var result *rpcReceipt
	if err := c.call(ctx, "eth_getTransactionReceipt", []any{txHash}, &result); err != nil {
		return domain.Receipt{}, false, err
	}
	if result == nil {
		return domain.Receipt{}, false, nil
	}
	receipt, err := result.decode()
	if err != nil {
		return domain.Receipt{}, false, fmt.Errorf("receipt %s: %w", txHash, err)
	}
	return receipt, true, nil
}

// BlockByNumber returns the header fields of a block, or false if it does not exist yet.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (domain.BlockHeader, bool, error) {
	var result *rpcBlock
	if err := c.call(ctx, "eth_getBlockByNumber", []any{hexutil.EncodeUint64(number), false}, &result); err != nil {
		return domain.BlockHeader{}, false, err
	}
	if result == nil {
		return domain.BlockHeader{}, false, nil
	}
	blockNumber, err := hexutil.DecodeUint64(result.Number)
	if err != nil {
		return domain.BlockHeader{}, false, fmt.Errorf("block number: %w", err)
	}
	timestamp, err := hexutil.DecodeUint64(result.Timestamp)
	if err != nil {
		return domain.BlockHeader{}, false, fmt.Errorf("block timestamp: %w", err)
	}
	return domain.BlockHeader{
		Number:    blockNumber,
		Hash:      strings.ToLower(result.Hash),
		Timestamp: time.Unix(int64(timestamp), 0).UTC(),
	}, true, nil
}

type rpcLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	BlockHash   string   `json:"blockHash"`
	TxHash      string   `json:"transactionHash"`
	TxIndex     string   `json:"transactionIndex"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

func (l rpcLog) decode() (Log, error) {
	blockNumber, err := hexutil.DecodeUint64(l.BlockNumber)
	if err != nil {
		return Log{}, fmt.Errorf("block number: %w", err)
	}
	txIndex, err := hexutil.DecodeUint64(l.TxIndex)
	if err != nil {
		return Log{}, fmt.Errorf("transaction index: %w", err)
	}
	logIndex, err := hexutil.DecodeUint64(l.LogIndex)
	if err != nil {
		return Log{}, fmt.Errorf("log index: %w", err)
	}
	data, err := hexutil.Decode(l.Data)
	if err != nil {
		return Log{}, fmt.Errorf("data: %w", err)
	}
	topics := make([]string, len(l.Topics))
	for i, topic := range l.Topics {
		topics[i] = strings.ToLower(topic)
	}
	return Log{
		Address:     strings.ToLower(l.Address),
		Topics:      topics,
		Data:        data,
		BlockNumber: blockNumber,
		BlockHash:   strings.ToLower(l.BlockHash),
		TxHash:      strings.ToLower(l.TxHash),
		TxIndex:     txIndex,
		LogIndex:    logIndex,
		Removed:     l.Removed,
	}, nil
}

type rpcReceipt struct {
	TxHash            string `json:"transactionHash"`
	BlockNumber       string `json:"blockNumber"`
	TxIndex           string `json:"transactionIndex"`
	Status            string `json:"status"`
	GasUsed           string `json:"gasUsed"`
	EffectiveGasPrice string `json:"effectiveGasPrice"`
}

func (r rpcReceipt) decode() (domain.Receipt, error) {
	blockNumber, err := hexutil.DecodeUint64(r.BlockNumber)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("block number: %w", err)
	}
	txIndex, err := hexutil.DecodeUint64(r.TxIndex)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("transaction index: %w", err)
	}
	gasUsed, err := hexutil.DecodeUint64(r.GasUsed)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("gas used: %w", err)
	}
	var status uint64
	if r.Status != "" {
		if status, err = hexutil.DecodeUint64(r.Status); err != nil {
			return domain.Receipt{}, fmt.Errorf("status: %w", err)
		}
	}
	gasPrice := new(big.Int)
	if r.EffectiveGasPrice != "" {
		if gasPrice, err = hexutil.DecodeBig(r.EffectiveGasPrice); err != nil {
			return domain.Receipt{}, fmt.Errorf("effective gas price: %w", err)
		}
	}
	return domain.Receipt{
		TxHash:            strings.ToLower(r.TxHash),
		BlockNumber:       blockNumber,
		TxIndex:           txIndex,
		Status:            status,
		GasUsed:           gasUsed,
		EffectiveGasPrice: gasPrice,
	}, nil
}

type rpcBlock struct {
	Number    string `json:"number"`
	Hash      string `json:"hash"`
	Timestamp string `json:"timestamp"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCError is an error object returned by the node. Reverted contract calls surface here.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) (err error) {
	if err := c.inFlight.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.inFlight.Release(1)

	if c.observer != nil {
		start := time.Now()
		defer func() {
			c.observer.ObserveRPC(method, time.Since(start), err)
		}()
	}

	id := atomic.AddUint64(&c.idCounter, 1)
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("rpc status %d", resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return err
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if result == nil {
		return nil
	}
	if len(decoded.Result) == 0 {
		return errors.New("rpc result is empty")
	}
	return json.Unmarshal(decoded.Result, result)
}
