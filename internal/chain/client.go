package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/pkg/logger"
)

// maxBatchAccounts is the node's limit for getMultipleAccounts.
const maxBatchAccounts = 100

// Client is a JSON-RPC ledger client.
type Client struct {
	rpcURL       string
	httpClient   *http.Client
	limiter      *rate.Limiter
	commitment   string
	signer       TxSigner
	confirmer    Confirmer
	pollInterval time.Duration
	waitTimeout  time.Duration
	log          *logger.Logger
}

var _ Ledger = (*Client)(nil)

// Config holds client configuration.
type Config struct {
	RPCURL     string
	WSURL      string // optional; enables websocket confirmation
	Commitment string
	Timeout    time.Duration

	// RequestsPerSecond <= 0 disables outbound rate limiting.
	RequestsPerSecond float64
	Burst             int

	// Signer turns instructions into signed transactions. Without one Submit fails.
	Signer TxSigner

	PollInterval time.Duration
	WaitTimeout  time.Duration

	Logger *logger.Logger
}

// NewClient creates a new ledger RPC client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	commitment := cfg.Commitment
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	if commitmentRank(commitment) == 0 {
		return nil, fmt.Errorf("unknown commitment %q", commitment)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("chain")
	}

	c := &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:      limiter,
		commitment:   commitment,
		signer:       cfg.Signer,
		pollInterval: cfg.PollInterval,
		waitTimeout:  cfg.WaitTimeout,
		log:          log,
	}
	c.confirmer = c
	if cfg.WSURL != "" {
		c.confirmer = NewWSConfirmer(cfg.WSURL, commitment, log).WithStatusCheck(c)
	}
	return c, nil
}

// =============================================================================
// Core RPC Methods
// =============================================================================

// Call makes an RPC call to the ledger node.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      uuid.NewString(),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response (HTTP %d): %w", resp.StatusCode, err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// =============================================================================
// Account Reads
// =============================================================================

func (c *Client) accountConfig() map[string]interface{} {
	return map[string]interface{}{
		"encoding":   "base64",
		"commitment": c.commitment,
	}
}

// Fetch returns the data of the account at addr.
func (c *Client) Fetch(ctx context.Context, addr ledger.Address) ([]byte, error) {
	result, err := c.Call(ctx, "getAccountInfo", []interface{}{addr.String(), c.accountConfig()})
	if err != nil {
		return nil, fmt.Errorf("getAccountInfo %s: %w", addr, err)
	}

	var info AccountInfoResult
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("unmarshal account info: %w", err)
	}
	if info.Value == nil {
		return nil, errors.NotFound("no account at " + addr.String())
	}
	return info.Value.decode()
}

// FetchBatch returns account data for addrs in order, nil for absent accounts.
func (c *Client) FetchBatch(ctx context.Context, addrs []ledger.Address) ([][]byte, error) {
	out := make([][]byte, len(addrs))
	for start := 0; start < len(addrs); start += maxBatchAccounts {
		end := start + maxBatchAccounts
		if end > len(addrs) {
			end = len(addrs)
		}

		keys := make([]string, 0, end-start)
		for _, a := range addrs[start:end] {
			keys = append(keys, a.String())
		}

		result, err := c.Call(ctx, "getMultipleAccounts", []interface{}{keys, c.accountConfig()})
		if err != nil {
			return nil, fmt.Errorf("getMultipleAccounts: %w", err)
		}

		var batch MultipleAccountsResult
		if err := json.Unmarshal(result, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal accounts: %w", err)
		}
		if len(batch.Value) != end-start {
			return nil, fmt.Errorf("getMultipleAccounts: asked for %d accounts, got %d", end-start, len(batch.Value))
		}

		for i, acct := range batch.Value {
			if acct == nil {
				continue
			}
			data, err := acct.decode()
			if err != nil {
				c.log.WithError(err).WithField("address", addrs[start+i].String()).Warn("undecodable account payload")
				continue
			}
			out[start+i] = data
		}
	}
	return out, nil
}

// GetSlot returns the current slot at the client's commitment.
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "getSlot", []interface{}{map[string]string{"commitment": c.commitment}})
	if err != nil {
		return 0, err
	}

	var slot uint64
	if err := json.Unmarshal(result, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// GetBlockTime returns the unix time of slot, or 0 if the node does not know it.
func (c *Client) GetBlockTime(ctx context.Context, slot uint64) (int64, error) {
	result, err := c.Call(ctx, "getBlockTime", []interface{}{slot})
	if err != nil {
		return 0, err
	}

	var ts *int64
	if err := json.Unmarshal(result, &ts); err != nil {
		return 0, err
	}
	if ts == nil {
		return 0, nil
	}
	return *ts, nil
}

func (a *AccountValue) decode() ([]byte, error) {
	if len(a.Data) != 2 || a.Data[1] != "base64" {
		return nil, errors.Decode("account data is not base64 encoded", nil)
	}
	raw, err := base64.StdEncoding.DecodeString(a.Data[0])
	if err != nil {
		return nil, errors.Decode("account data", err)
	}
	return raw, nil
}
