// Package etherscan fetches verified-contract metadata used to drive
// deployment-address verification.
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/solfixes/solfixes/internal/metrics"
	apperrors "github.com/solfixes/solfixes/pkg/app/errors"
	"github.com/solfixes/solfixes/pkg/config"
)

// ErrNotVerified marks an address without verified source on Etherscan.
var ErrNotVerified = errors.New("contract source not verified")

const (
	requestAttempts = 3
	retryBaseDelay  = 500 * time.Millisecond
)

// Client represents an Etherscan API client
type Client struct {
	config     *config.EtherscanConfig
	httpClient *http.Client
	limiter    *RateLimiter
	logger     *zap.Logger
}

// NewClient creates a new Etherscan client
func NewClient(cfg *config.EtherscanConfig, logger *zap.Logger) *Client {
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    NewRateLimiter(cfg.RequestsPerSecond),
		logger:     logger.Named("etherscan"),
	}
}

// Close stops the client's rate limiter.
func (c *Client) Close() {
	c.limiter.Stop()
}

// ContractInfo holds the verified-source metadata of a deployed contract.
type ContractInfo struct {
	ContractName     string
	CompilerVersion  string
	Optimized        bool
	OptimizationRuns int
}

// The result field is an array on success and a bare string on API errors.
type sourceCodeResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type sourceCodeResult struct {
	SourceCode       string `json:"SourceCode"`
	ContractName     string `json:"ContractName"`
	CompilerVersion  string `json:"CompilerVersion"`
	OptimizationUsed string `json:"OptimizationUsed"`
	Runs             string `json:"Runs"`
}

// ContractSource fetches the verified-source metadata for a deployment
// address. Returns ErrNotVerified when Etherscan has no verified source for
// it.
func (c *Client) ContractSource(ctx context.Context, address string) (*ContractInfo, error) {
	query := url.Values{}
	query.Set("module", "contract")
	query.Set("action", "getsourcecode")
	query.Set("address", address)
	query.Set("chainid", strconv.Itoa(c.config.ChainID))
	query.Set("apikey", c.config.APIKey)
	requestURL := c.config.BaseURL + "?" + query.Encode()

	var lastErr error
	for attempt := 1; attempt <= requestAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		info, err := c.fetchSource(ctx, requestURL)
		if err == nil {
			metrics.EtherscanRequests.WithLabelValues("ok").Inc()
			return info, nil
		}
		if errors.Is(err, ErrNotVerified) {
			metrics.EtherscanRequests.WithLabelValues("not_verified").Inc()
			return nil, fmt.Errorf("%s: %w", address, err)
		}

		lastErr = err
		if !retryable(err) || attempt == requestAttempts {
			break
		}
		c.logger.Warn("Etherscan request failed, retrying",
			zap.String("address", address),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if err := sleepContext(ctx, time.Duration(attempt)*retryBaseDelay); err != nil {
			return nil, err
		}
	}

	metrics.EtherscanRequests.WithLabelValues("error").Inc()
	return nil, apperrors.DependencyError(
		fmt.Errorf("failed to fetch contract source for %s: %w", address, lastErr),
		"etherscan getsourcecode failed")
}

// errRateLimited is retryable but distinct from transport errors.
var errRateLimited = errors.New("etherscan rate limit reached")

func (c *Client) fetchSource(ctx context.Context, requestURL string) (*ContractInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed sourceCodeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if parsed.Status != "1" {
		if strings.Contains(strings.ToLower(string(parsed.Result)), "rate limit") {
			return nil, errRateLimited
		}
		return nil, ErrNotVerified
	}

	var results []sourceCodeResult
	if err := json.Unmarshal(parsed.Result, &results); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}
	if len(results) == 0 || results[0].ContractName == "" || results[0].SourceCode == "" {
		return nil, ErrNotVerified
	}

	res := results[0]
	runs, err := strconv.Atoi(res.Runs)
	if err != nil {
		// Runs arrives as a string and is empty for some old contracts.
		runs = 200
	}

	return &ContractInfo{
		ContractName:     res.ContractName,
		CompilerVersion:  NormalizeCompilerVersion(res.CompilerVersion),
		Optimized:        res.OptimizationUsed == "1",
		OptimizationRuns: runs,
	}, nil
}

// NormalizeCompilerVersion reduces Etherscan's long compiler tag, e.g.
// "v0.4.24+commit.e67f0147", to the bare version number.
func NormalizeCompilerVersion(version string) string {
	version = strings.TrimPrefix(version, "v")
	version, _, _ = strings.Cut(version, "+")
	return version
}

func retryable(err error) bool {
	if errors.Is(err, errRateLimited) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
