package notify

import (
	"context"
	"fmt"
	"net/http"

	gresty "github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
)

var errWebhookHTTPError = fmt.Errorf("webhook http error")

// Merchant integrations expect amounts as JSON numbers, not strings.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Payload is the JSON body delivered to the merchant callback URL when
// a watch completes.
type Payload struct {
	PaymentID      string          `json:"payment_id"`
	OrderID        string          `json:"order_id"`
	WalletAddress  string          `json:"wallet_address"`
	Currency       string          `json:"currency"`
	ExpectedAmount decimal.Decimal `json:"expected_amount_usdt"`
	ReceivedAmount decimal.Decimal `json:"received_amount_usdt"`
	TxHash         string          `json:"transaction_hash"`
	BlockTimestamp int64           `json:"block_timestamp"`
	Status         string          `json:"status"`
}

// PayloadFor builds the webhook payload for a completed watch.
func PayloadFor(w *domain.Watch) *Payload {
	return &Payload{
		PaymentID:      w.ID,
		OrderID:        w.OrderID,
		WalletAddress:  w.Address,
		Currency:       "USDT_TRC20",
		ExpectedAmount: w.ExpectedAmount,
		ReceivedAmount: w.ReceivedAmount,
		TxHash:         w.TxHash,
		BlockTimestamp: w.BlockTimestamp,
		Status:         string(w.Status),
	}
}

// WebhookClient posts completion payloads to merchant callback URLs.
type WebhookClient struct {
	client *gresty.Client
}

// NewWebhookClient creates a webhook delivery client. Any non-2xx
// response is surfaced as an error so the caller can retry.
func NewWebhookClient() *WebhookClient {
	client := gresty.New()
	client.OnAfterResponse(func(client *gresty.Client, response *gresty.Response) error {
		statusCode := response.StatusCode()
		if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
			method := response.Request.Method
			url := response.Request.URL
			return fmt.Errorf("%d cannot %s %s: %w", statusCode, method, url, errWebhookHTTPError)
		}
		return nil
	})
	return &WebhookClient{client: client}
}

// Deliver posts the payload to the given URL. A nil error means the
// merchant acknowledged with a 2xx status.
func (wc *WebhookClient) Deliver(ctx context.Context, url string, payload *Payload) error {
	_, err := wc.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)
	return err
}
