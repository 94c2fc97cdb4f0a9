package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type webhookBiller struct {
	url    string
	apiKey string
	client *http.Client
}

// NewWebhookBiller posts billing requests to an invoicing endpoint that answers with {"invoice_ref": "..."}.
func NewWebhookBiller(url, apiKey string, timeout time.Duration) Biller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &webhookBiller{url: url, apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

type invoiceResponse struct {
	InvoiceRef string `json:"invoice_ref"`
	Error      string `json:"error,omitempty"`
}

func (b *webhookBiller) CreateInvoice(ctx context.Context, req domain.BillingRequest) (string, error) {
	logger.ExternalServiceCall("billing", "CreateInvoice", "lineItemID", req.LineItemID, "total", req.Total.String())

	ref, err := b.post(ctx, req)
	logger.ExternalServiceResult("billing", "CreateInvoice", err, "lineItemID", req.LineItemID, "invoiceRef", ref)
	return ref, err
}

func (b *webhookBiller) post(ctx context.Context, req domain.BillingRequest) (string, error) {
	if b.url == "" {
		return "", fmt.Errorf("billing webhook is not configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode billing request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Retries of the same line item must not produce a second invoice.
	httpReq.Header.Set("Idempotency-Key", fmt.Sprintf("line-item-%d", req.LineItemID))
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("billing request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read billing response: %w", err)
	}
	var out invoiceResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil && resp.StatusCode < 300 {
			return "", fmt.Errorf("failed to decode billing response: %w", err)
		}
	}
	if resp.StatusCode >= 300 {
		if out.Error != "" {
			return "", fmt.Errorf("billing returned %d: %s", resp.StatusCode, out.Error)
		}
		return "", fmt.Errorf("billing returned %d", resp.StatusCode)
	}
	if out.InvoiceRef == "" {
		return "", fmt.Errorf("billing response has no invoice reference")
	}
	return out.InvoiceRef, nil
}
