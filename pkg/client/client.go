package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmerrifield20/pohledger/pkg/txn"
)

// ErrNotFound is returned when the node has no such account or entry.
var ErrNotFound = errors.New("not found")

// RejectedError is returned when the node refuses to apply a transaction.
type RejectedError struct {
	StatusCode int
	Reason     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transaction rejected (HTTP %d): %s", e.StatusCode, e.Reason)
}

// Receipt is returned for a committed transaction.
type Receipt struct {
	EntryHash  string           `json:"entry_hash"`
	EntryIndex int              `json:"entry_index"`
	Signature  txn.Signature    `json:"signature"`
	Modified   []txn.Identifier `json:"modified"`
}

// Account is an account record as served by the node.
type Account struct {
	ID         txn.Identifier `json:"id"`
	Balance    uint64         `json:"balance"`
	Data       []byte         `json:"data"`
	Owner      txn.Identifier `json:"owner"`
	Executable bool           `json:"executable"`
}

// GenesisAccount pairs a genesis account number with its identifier.
type GenesisAccount struct {
	Number uint8          `json:"number"`
	ID     txn.Identifier `json:"id"`
}

// ChainOverview summarises the node's hash chain. Hashes are hex.
type ChainOverview struct {
	Genesis       string `json:"genesis"`
	LastHash      string `json:"last_hash"`
	Entries       int    `json:"entries"`
	HashesPerTick uint64 `json:"hashes_per_tick"`
}

// VerifyResult is the outcome of a full chain replay on the node.
type VerifyResult struct {
	Valid         bool   `json:"valid"`
	Error         string `json:"error,omitempty"`
	MismatchIndex *int   `json:"mismatch_index,omitempty"`
}

// Entry is one hash chain entry. A tick has no transactions.
type Entry struct {
	Index        int                `json:"index"`
	HashCount    uint64             `json:"hash_count"`
	Hash         string             `json:"hash"`
	Transactions []*txn.Transaction `json:"transactions"`
}

// Client talks to one ledger node.
type Client struct {
	nodeBase   string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{Timeout: d}
		return nil
	}
}

// New creates a Client for the node at nodeBase, e.g. "http://localhost:8080".
func New(nodeBase string, opts ...Option) (*Client, error) {
	if nodeBase == "" {
		return nil, errors.New("node URL is required")
	}
	c := &Client{
		nodeBase:   strings.TrimRight(nodeBase, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(nodeBase string, opts ...Option) *Client {
	c, err := New(nodeBase, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Transfer asks the node to move lamports between two genesis accounts,
// signing with the node-held genesis key of from.
func (c *Client) Transfer(ctx context.Context, from, to uint8, lamports uint64) (*Receipt, error) {
	return c.submit(ctx, "/api/v1/transfer", map[string]any{
		"from":     from,
		"to":       to,
		"lamports": lamports,
	})
}

// SubmitTransaction posts a caller-signed transaction.
func (c *Client) SubmitTransaction(ctx context.Context, tx *txn.Transaction) (*Receipt, error) {
	if tx == nil {
		return nil, errors.New("nil transaction")
	}
	return c.submit(ctx, "/api/v1/transactions", tx)
}

func (c *Client) submit(ctx context.Context, path string, payload any) (*Receipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeBase+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, respBody, err := c.doStatusBody(req)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		Receipt
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode response (HTTP %d): %w", status, err)
	}
	if status != http.StatusOK || !resp.OK {
		reason := resp.Error
		if reason == "" {
			reason = strings.TrimSpace(string(respBody))
		}
		return nil, &RejectedError{StatusCode: status, Reason: reason}
	}
	return &resp.Receipt, nil
}

// GetAccount fetches one account by identifier.
func (c *Client) GetAccount(ctx context.Context, id txn.Identifier) (*Account, error) {
	var acct Account
	if err := c.getJSON(ctx, "/api/v1/accounts/"+id.String(), &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// ListAccounts returns every stored account.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var wrapper struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.getJSON(ctx, "/api/v1/accounts", &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Accounts, nil
}

// GenesisAccounts returns the account numbers usable with Transfer.
func (c *Client) GenesisAccounts(ctx context.Context) ([]GenesisAccount, error) {
	var wrapper struct {
		Accounts []GenesisAccount `json:"accounts"`
	}
	if err := c.getJSON(ctx, "/api/v1/accounts/genesis", &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Accounts, nil
}

// ChainOverview returns the chain's genesis, head and length.
func (c *Client) ChainOverview(ctx context.Context) (*ChainOverview, error) {
	var ov ChainOverview
	if err := c.getJSON(ctx, "/api/v1/chain", &ov); err != nil {
		return nil, err
	}
	return &ov, nil
}

// VerifyChain asks the node to replay its chain from genesis.
func (c *Client) VerifyChain(ctx context.Context) (*VerifyResult, error) {
	var res VerifyResult
	if err := c.getJSON(ctx, "/api/v1/chain/verify", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetEntry fetches the chain entry at index.
func (c *Client) GetEntry(ctx context.Context, index int) (*Entry, error) {
	if index < 0 {
		return nil, fmt.Errorf("entry index must be non-negative, got %d", index)
	}
	var e Entry
	if err := c.getJSON(ctx, "/api/v1/chain/entries/"+strconv.Itoa(index), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nodeBase+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do executes an HTTP request and fails on any non-2xx status.
func (c *Client) do(req *http.Request) ([]byte, error) {
	status, body, err := c.doStatusBody(req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	}
	if status >= 300 {
		return nil, fmt.Errorf("server error %d: %s", status, string(body))
	}
	return body, nil
}

// doStatusBody returns (statusCode, body, error) without failing on 4xx
// responses. The caller interprets the status code.
func (c *Client) doStatusBody(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
