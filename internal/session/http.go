package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/conduit-lang/trident/internal/payload"
	"go.uber.org/zap"
)

// Methods of the record API
const (
	MethodFind   = "find"
	MethodWhere  = "where"
	MethodCreate = "create"
)

// ErrRemote is returned when the record API answers with an error
var ErrRemote = errors.New("record api error")

// Request is the body of a call to the record API
type Request struct {
	Model   string                 `json:"model"`
	Method  string                 `json:"method"`
	ID      interface{}            `json:"id,omitempty"`
	Query   map[string]interface{} `json:"query,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Include interface{}            `json:"include,omitempty"`
}

// HTTPStore calls a remote record API at POST {base}/json
type HTTPStore struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPStore creates a client for the record API at base
func NewHTTPStore(base string, logger *zap.Logger) (*HTTPStore, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid record api url %q", base)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPStore{
		endpoint: strings.TrimRight(base, "/") + "/json",
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}, nil
}

// Find calls the remote find method
func (s *HTTPStore) Find(ctx context.Context, model string, id interface{}) (interface{}, error) {
	return s.Call(ctx, Request{Model: model, Method: MethodFind, ID: id})
}

// Where calls the remote where method
func (s *HTTPStore) Where(ctx context.Context, model string, query map[string]interface{}) (interface{}, error) {
	if query == nil {
		query = map[string]interface{}{}
	}
	return s.Call(ctx, Request{Model: model, Method: MethodWhere, Query: query})
}

// Put calls the remote create method and returns the new id
func (s *HTTPStore) Put(ctx context.Context, model string, raw map[string]interface{}) (interface{}, error) {
	resp, err := s.Call(ctx, Request{Model: model, Method: MethodCreate, Data: raw})
	if err != nil {
		return nil, err
	}
	m, ok := resp.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: unexpected create response %T", ErrRemote, resp)
	}
	return m["id"], nil
}

// Close releases idle connections
func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Call posts req and returns the decoded response
func (s *HTTPStore) Call(ctx context.Context, req Request) (interface{}, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Model, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	s.logger.Debug("record api call",
		zap.String("model", req.Model),
		zap.String("method", req.Method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRemote, apiErr.Error)
		}
		return nil, fmt.Errorf("%w: status %d", ErrRemote, resp.StatusCode)
	}

	return payload.DecodeJSON(data)
}
