// Package trongrid implements the ledger client against TronGrid's HTTP
// API. TronGrid is not JSON-RPC; TRC20 transfer history comes from a REST
// endpoint. API docs: https://developers.tron.network/reference
package trongrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/monitor/metrics"
)

const apiKeyHeader = "TRON-PRO-API-KEY"

// Config holds TronGrid client settings.
type Config struct {
	BaseURL   string
	APIKey    string
	Contract  string
	Timeout   time.Duration
	PageLimit int
}

// Client queries TRC20 transfers for watched addresses. Stateless; all
// cursor bookkeeping belongs to the poll scheduler.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a TronGrid client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PageLimit == 0 {
		cfg.PageLimit = 50
	}
	if cfg.Contract == "" {
		cfg.Contract = domain.USDTContract
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// trc20Response mirrors TronGrid's TRC20 transaction listing.
type trc20Response struct {
	Data []struct {
		TransactionID  string `json:"transaction_id"`
		BlockTimestamp int64  `json:"block_timestamp"`
		From           string `json:"from"`
		To             string `json:"to"`
		Type           string `json:"type"`
		Value          string `json:"value"`
		TokenInfo      struct {
			Address  string `json:"address"`
			Decimals int32  `json:"decimals"`
			Symbol   string `json:"symbol"`
		} `json:"token_info"`
	} `json:"data"`
	Success bool `json:"success"`
	Meta    struct {
		Fingerprint string `json:"fingerprint"`
	} `json:"meta"`
}

// TransfersSince returns confirmed USDT transfers to the address with block
// timestamps strictly newer than sinceMS, ordered oldest first. TronGrid may
// return overlapping results around the boundary; callers dedup by hash.
func (c *Client) TransfersSince(ctx context.Context, address string, sinceMS int64) ([]domain.Transfer, error) {
	var (
		transfers   []domain.Transfer
		fingerprint string
	)

	for {
		page, next, err := c.fetchPage(ctx, address, sinceMS, fingerprint)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, page...)
		if next == "" || len(page) == 0 {
			break
		}
		fingerprint = next
	}

	return transfers, nil
}

func (c *Client) fetchPage(ctx context.Context, address string, sinceMS int64, fingerprint string) ([]domain.Transfer, string, error) {
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20", c.cfg.BaseURL, url.PathEscape(address))

	params := url.Values{}
	params.Set("only_confirmed", "true")
	params.Set("only_to", "true")
	params.Set("limit", strconv.Itoa(c.cfg.PageLimit))
	params.Set("order_by", "block_timestamp,asc")
	params.Set("contract_address", c.cfg.Contract)
	if sinceMS > 0 {
		params.Set("min_timestamp", strconv.FormatInt(sinceMS+1, 10))
	}
	if fingerprint != "" {
		params.Set("fingerprint", fingerprint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.LedgerRequests.WithLabelValues("error").Inc()
		return nil, "", fmt.Errorf("trongrid call: %w", err)
	}
	defer resp.Body.Close()
	metrics.LedgerLatency.Observe(time.Since(start).Seconds())

	if resp.StatusCode == http.StatusTooManyRequests {
		metrics.LedgerRequests.WithLabelValues("throttled").Inc()
		return nil, "", fmt.Errorf("trongrid rate limited (429), retry after: %s", resp.Header.Get("Retry-After"))
	}
	if resp.StatusCode == http.StatusForbidden {
		metrics.LedgerRequests.WithLabelValues("throttled").Inc()
		return nil, "", fmt.Errorf("trongrid access denied (403)")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.LedgerRequests.WithLabelValues("error").Inc()
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.LedgerRequests.WithLabelValues("error").Inc()
		return nil, "", fmt.Errorf("trongrid http %d: %s", resp.StatusCode, string(body))
	}

	var parsed trc20Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		metrics.LedgerRequests.WithLabelValues("error").Inc()
		return nil, "", fmt.Errorf("parse response: %w", err)
	}
	metrics.LedgerRequests.WithLabelValues("ok").Inc()

	transfers := make([]domain.Transfer, 0, len(parsed.Data))
	for _, tx := range parsed.Data {
		// Transfer-type events only; approvals carry the same shape.
		if tx.Type != "" && tx.Type != "Transfer" {
			continue
		}
		raw, err := decimal.NewFromString(tx.Value)
		if err != nil {
			continue
		}
		decimals := tx.TokenInfo.Decimals
		if decimals == 0 {
			decimals = 6 // USDT default
		}
		transfers = append(transfers, domain.Transfer{
			TxHash:         tx.TransactionID,
			From:           tx.From,
			To:             tx.To,
			Contract:       tx.TokenInfo.Address,
			RawValue:       tx.Value,
			Amount:         raw.Shift(-decimals),
			Decimals:       decimals,
			BlockTimestamp: tx.BlockTimestamp,
		})
	}

	return transfers, parsed.Meta.Fingerprint, nil
}
