package command

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mforney/docpipe/internal/logger"
)

// HTTPBus delivers outcomes to an external document service over its REST
// command endpoints.
type HTTPBus struct {
	client *resty.Client
}

// NewHTTPBus creates a bus for the document service at baseURL.
func NewHTTPBus(baseURL string, timeout time.Duration) *HTTPBus {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second)
	return &HTTPBus{client: client}
}

func (b *HTTPBus) AddFormatToDocument(ctx context.Context, cmd AddFormatToDocument) error {
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(cmd).
		Post(fmt.Sprintf("/api/v1/tenants/%s/documents/%s/formats", cmd.TenantID, cmd.DocumentID))
	if err != nil {
		return fmt.Errorf("failed to deliver add-format command: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("add-format command rejected: %s (%s)", resp.Status(), resp.String())
	}
	logger.CtxDebug(ctx, "Delivered format %s for document %s", cmd.Format, cmd.DocumentID)
	return nil
}

func (b *HTTPBus) MarkConversionFailed(ctx context.Context, cmd MarkConversionFailed) error {
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(cmd).
		Post(fmt.Sprintf("/api/v1/tenants/%s/documents/%s/failures", cmd.TenantID, cmd.DocumentID))
	if err != nil {
		return fmt.Errorf("failed to deliver conversion-failed command: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("conversion-failed command rejected: %s (%s)", resp.Status(), resp.String())
	}
	return nil
}
