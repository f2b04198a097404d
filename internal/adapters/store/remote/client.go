// Package remote talks to a record-store server over HTTP and websockets.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client implements core.RecordStore against the record-store HTTP API.
type Client struct {
	base   *url.URL
	http   *http.Client
	dialer websocket.Dialer
	buffer int
}

var _ core.RecordStore = (*Client)(nil)

func NewClient(baseURL string, subscriberBuffer int) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("store url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("store url: unsupported scheme %q", base.Scheme)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if subscriberBuffer <= 0 {
		subscriberBuffer = 16
	}

	dialer := *websocket.DefaultDialer
	dialer.Jar = jar
	return &Client{
		base:   base,
		http:   &http.Client{Jar: jar, Timeout: defaultTimeout},
		dialer: dialer,
		buffer: subscriberBuffer,
	}, nil
}

func (c *Client) CreateRecord(ctx context.Context) (domain.CallID, error) {
	var out struct {
		ID domain.CallID `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/calls", nil, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: empty id in response", domain.ErrStore)
	}
	return out.ID, nil
}

func (c *Client) Get(ctx context.Context, id domain.CallID) (domain.CallRecord, error) {
	var rec domain.CallRecord
	err := c.do(ctx, http.MethodGet, callPath(id), nil, &rec)
	return rec, err
}

func (c *Client) SetOffer(ctx context.Context, id domain.CallID, desc domain.SessionDescription) error {
	return c.do(ctx, http.MethodPut, callPath(id)+"/offer", desc, nil)
}

func (c *Client) SetAnswer(ctx context.Context, id domain.CallID, desc domain.SessionDescription) error {
	return c.do(ctx, http.MethodPut, callPath(id)+"/answer", desc, nil)
}

func (c *Client) AppendCandidate(ctx context.Context, id domain.CallID, role domain.Role, candidate string) error {
	side := role.CandidateSide()
	if side == "" {
		return fmt.Errorf("%w: %s", domain.ErrInvalidRole, role)
	}
	body := struct {
		Candidate string `json:"candidate"`
	}{candidate}
	return c.do(ctx, http.MethodPost, callPath(id)+"/candidates/"+side, body, nil)
}

func callPath(id domain.CallID) string {
	return "/api/calls/" + url.PathEscape(id.String())
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", domain.ErrStore, err)
	}
	return nil
}

// responseError maps a non-2xx response to the store error kinds.
func responseError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrRecordNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrAnswerBeforeOffer, msg)
	case http.StatusBadRequest, http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %d %s", domain.ErrStore, domain.ErrStoreRejected, resp.StatusCode, msg)
	default:
		return fmt.Errorf("%w: %d %s", domain.ErrStore, resp.StatusCode, msg)
	}
}
