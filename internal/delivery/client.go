package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"vigil/internal/config"
	"vigil/internal/queue"
	"vigil/internal/services"
)

// Deliverer pushes one artifact through the full handoff.
type Deliverer interface {
	Deliver(ctx context.Context, item *queue.Item) (Receipt, error)
}

// Receipt is the remote's acknowledgement of a completed delivery.
type Receipt struct {
	Locator     string
	ConfirmedAt time.Time
}

// HTTPDoer matches *http.Client so tests can substitute transports.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client speaks the artifact handoff protocol over HTTP.
type Client struct {
	baseURL          string
	authToken        string
	httpClient       HTTPDoer
	negotiateTimeout time.Duration
	transferTimeout  time.Duration
	confirmTimeout   time.Duration
}

// NewClient builds a delivery client from the remote configuration.
func NewClient(cfg config.Remote) *Client {
	return &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		authToken:        cfg.AuthToken,
		httpClient:       &http.Client{},
		negotiateTimeout: time.Duration(cfg.NegotiateTimeout) * time.Second,
		transferTimeout:  time.Duration(cfg.TransferTimeout) * time.Second,
		confirmTimeout:   time.Duration(cfg.ConfirmTimeout) * time.Second,
	}
}

// WithHTTPClient swaps the underlying transport. Intended for tests.
func (c *Client) WithHTTPClient(doer HTTPDoer) *Client {
	c.httpClient = doer
	return c
}

type negotiateRequest struct {
	ItemID    string `json:"item_id"`
	OwnerID   string `json:"owner_id"`
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Size      int64  `json:"size"`
	Metadata  string `json:"metadata,omitempty"`
}

type negotiateResponse struct {
	UploadURL string `json:"upload_url"`
	Locator   string `json:"locator"`
}

type confirmRequest struct {
	ItemID  string `json:"item_id"`
	OwnerID string `json:"owner_id"`
	Locator string `json:"locator"`
}

type confirmResponse struct {
	Locator     string    `json:"locator"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// Deliver runs negotiate, transfer, and confirm in order. Any leg failing
// fails the whole attempt; a payload parked on the remote without a confirm
// is retried from the top next time.
func (c *Client) Deliver(ctx context.Context, item *queue.Item) (Receipt, error) {
	requestID := uuid.NewString()
	ctx = services.WithRequestID(ctx, requestID)

	target, err := c.negotiate(ctx, item, requestID)
	if err != nil {
		return Receipt{}, err
	}
	if err := c.transfer(ctx, item, target, requestID); err != nil {
		return Receipt{}, err
	}
	return c.confirm(ctx, item, target, requestID)
}

func (c *Client) negotiate(ctx context.Context, item *queue.Item, requestID string) (negotiateResponse, error) {
	body, err := json.Marshal(negotiateRequest{
		ItemID:    item.ID,
		OwnerID:   item.OwnerID,
		SessionID: item.SessionID,
		Kind:      string(item.Kind),
		Size:      int64(len(item.Payload)),
		Metadata:  item.MetadataJSON,
	})
	if err != nil {
		return negotiateResponse{}, services.Wrap(services.ErrDeliveryFailed, "delivery", "negotiate", "encode request", err)
	}

	legCtx, cancel := context.WithTimeout(ctx, c.negotiateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(legCtx, http.MethodPost, c.baseURL+"/v1/artifacts/negotiate", bytes.NewReader(body))
	if err != nil {
		return negotiateResponse{}, services.Wrap(services.ErrDeliveryFailed, "delivery", "negotiate", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyAuth(req, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return negotiateResponse{}, services.Wrap(services.ErrDeliveryFailed, "delivery", "negotiate", "", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return negotiateResponse{}, classifyStatus("negotiate", resp)
	}

	var target negotiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&target); err != nil {
		return negotiateResponse{}, services.Wrap(services.ErrDeliveryFailed, "delivery", "negotiate", "decode response", err)
	}
	if target.UploadURL == "" || target.Locator == "" {
		return negotiateResponse{}, services.Wrap(services.ErrDeliveryFailed, "delivery", "negotiate", "incomplete response", nil)
	}
	return target, nil
}

func (c *Client) transfer(ctx context.Context, item *queue.Item, target negotiateResponse, requestID string) error {
	legCtx, cancel := context.WithTimeout(ctx, c.transferTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(legCtx, http.MethodPut, target.UploadURL, bytes.NewReader(item.Payload))
	if err != nil {
		return services.Wrap(services.ErrDeliveryFailed, "delivery", "transfer", "build request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(item.Payload))
	c.applyAuth(req, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrDeliveryFailed, "delivery", "transfer", "", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return classifyStatus("transfer", resp)
	}
	return nil
}

func (c *Client) confirm(ctx context.Context, item *queue.Item, target negotiateResponse, requestID string) (Receipt, error) {
	body, err := json.Marshal(confirmRequest{ItemID: item.ID, OwnerID: item.OwnerID, Locator: target.Locator})
	if err != nil {
		return Receipt{}, services.Wrap(services.ErrDeliveryFailed, "delivery", "confirm", "encode request", err)
	}

	legCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(legCtx, http.MethodPost, c.baseURL+"/v1/artifacts/confirm", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, services.Wrap(services.ErrDeliveryFailed, "delivery", "confirm", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyAuth(req, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Receipt{}, services.Wrap(services.ErrDeliveryFailed, "delivery", "confirm", "", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Receipt{}, classifyStatus("confirm", resp)
	}

	var confirmed confirmResponse
	if err := json.NewDecoder(resp.Body).Decode(&confirmed); err != nil {
		return Receipt{}, services.Wrap(services.ErrDeliveryFailed, "delivery", "confirm", "decode response", err)
	}
	receipt := Receipt{Locator: confirmed.Locator, ConfirmedAt: confirmed.ConfirmedAt}
	if receipt.Locator == "" {
		receipt.Locator = target.Locator
	}
	if receipt.ConfirmedAt.IsZero() {
		receipt.ConfirmedAt = time.Now()
	}
	return receipt, nil
}

func (c *Client) applyAuth(req *http.Request, requestID string) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	req.Header.Set("X-Request-ID", requestID)
}

// classifyStatus maps an HTTP status to the retry taxonomy. Server trouble
// and throttling stay retryable; other client errors mean the request
// itself is bad and repeating it cannot help.
func classifyStatus(operation string, resp *http.Response) error {
	snippet := readSnippet(resp.Body)
	message := fmt.Sprintf("remote returned %s", resp.Status)
	if snippet != "" {
		message += ": " + snippet
	}

	marker := services.ErrDeliveryFailed
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout &&
		resp.StatusCode != http.StatusTooManyRequests {
		marker = services.ErrDeliveryFailedPermanently
	}
	return services.Wrap(marker, "delivery", operation, message, nil)
}

func readSnippet(r io.Reader) string {
	const limit = 256
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
