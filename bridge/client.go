package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/healthcheck"
	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultURL is where the desktop shell starts its bridge.
const DefaultURL = "http://127.0.0.1:8001"

// Client is a memory.VectorStore backed by a bridge server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the bridge at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// Add stores rec through add_conversation.
func (c *Client) Add(ctx context.Context, rec *core.StoredRecord) error {
	_, err := c.do(ctx, &Request{
		Action:    ActionAddConversation,
		ID:        rec.ID,
		Text:      rec.Text,
		Sender:    string(rec.Sender),
		Timestamp: rec.Timestamp.UnixMilli(),
		Metadata:  EncodeMetadata(rec.Metadata),
		Embedding: rec.Embedding,
	}, goerr.T(memory.ErrTagWrite))
	return err
}

// Query searches through query_conversations.
func (c *Client) Query(ctx context.Context, embedding []float32, queryText string, limit int) ([]memory.Match, error) {
	resp, err := c.do(ctx, &Request{
		Action:    ActionQueryConversations,
		Embedding: embedding,
		QueryText: queryText,
		NResults:  limit,
	}, goerr.T(memory.ErrTagQuery))
	if err != nil {
		return nil, err
	}

	matches := make([]memory.Match, 0, len(resp.Results))
	for _, r := range resp.Results {
		// A result without a distance ranks last.
		d := 1.0
		if r.Distance != nil {
			d = *r.Distance
		}
		matches = append(matches, memory.Match{Record: DecodeResult(r), Distance: d})
	}
	return matches, nil
}

// ListAll pages through get_all_conversations.
func (c *Client) ListAll(ctx context.Context, limit, offset int) (*memory.Page, error) {
	resp, err := c.do(ctx, &Request{
		Action: ActionGetAllConversations,
		Limit:  limit,
		Offset: offset,
	}, goerr.T(memory.ErrTagQuery))
	if err != nil {
		return nil, err
	}

	page := &memory.Page{Records: make([]core.StoredRecord, 0, len(resp.Results))}
	for _, r := range resp.Results {
		page.Records = append(page.Records, DecodeResult(r))
	}
	if resp.Total != nil {
		page.Total = *resp.Total
	} else {
		page.Total = offset + len(page.Records)
	}
	return page, nil
}

// healthRequest is the cheapest action every bridge answers. Bridges only
// have to serve POST /.
var healthRequest = []byte(`{"action":"` + ActionGetAllConversations + `","limit":1}`)

// HealthCheck lists a single conversation.
func (c *Client) HealthCheck(ctx context.Context) error {
	hc := healthcheck.HTTP{URL: c.baseURL + "/", Method: http.MethodPost, Body: healthRequest, Client: c.httpClient}
	if err := hc.HealthCheck(ctx); err != nil {
		return goerr.Wrap(err, "bridge unhealthy", goerr.V("url", c.baseURL), goerr.T(memory.ErrTagStoreUnavailable))
	}
	return nil
}

// do posts req. Transport failures and gateway-style replies are tagged
// ErrTagStoreUnavailable; any other error reply gets fail.
func (c *Client) do(ctx context.Context, req *Request, fail goerr.Option) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal bridge request", fail)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build bridge request", fail)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		tag := goerr.T(memory.ErrTagStoreUnavailable)
		if errors.Is(err, context.Canceled) {
			tag = fail
		}
		return nil, goerr.Wrap(err, "bridge request failed", goerr.V("action", req.Action), tag)
	}
	defer httpResp.Body.Close()

	var resp Response
	decodeErr := json.NewDecoder(httpResp.Body).Decode(&resp)

	switch httpResp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, goerr.New("bridge store unavailable",
			goerr.V("action", req.Action), goerr.V("status", httpResp.StatusCode), goerr.V("error", resp.Error),
			goerr.T(memory.ErrTagStoreUnavailable))
	}
	if decodeErr != nil {
		return nil, goerr.Wrap(decodeErr, "failed to decode bridge response",
			goerr.V("action", req.Action), goerr.V("status", httpResp.StatusCode), fail)
	}
	if httpResp.StatusCode >= 400 || resp.Error != "" {
		return nil, goerr.New("bridge rejected request",
			goerr.V("action", req.Action), goerr.V("status", httpResp.StatusCode), goerr.V("error", resp.Error),
			fail)
	}
	return &resp, nil
}

var (
	_ memory.VectorStore   = (*Client)(nil)
	_ memory.HealthChecker = (*Client)(nil)
)
