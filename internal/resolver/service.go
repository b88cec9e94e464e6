package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dayuer/charbot-go/internal/config"
)

// ErrRateLimited is returned by a Service when the remote side answered 429.
// It is the only error the resolver retries.
var ErrRateLimited = errors.New("rate limited")

// Match is a candidate display name returned by one service.
type Match struct {
	DisplayName string
	Confidence  float64
}

// Service is one external lookup source. A nil Match with a nil error means
// the service knows nothing about the token.
type Service interface {
	Name() string
	Lookup(ctx context.Context, token string) (*Match, error)
}

// HTTPService queries a JSON endpoint declared in services.yaml.
type HTTPService struct {
	spec   config.ServiceSpec
	client *http.Client
}

// NewHTTPService builds a service from its declaration. A nil client means
// http.DefaultClient.
func NewHTTPService(spec config.ServiceSpec, client *http.Client) *HTTPService {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPService{spec: spec, client: client}
}

// Name returns the configured service name.
func (s *HTTPService) Name() string { return s.spec.Name }

// Lookup performs GET url?param=token.
func (s *HTTPService) Lookup(ctx context.Context, token string) (*Match, error) {
	u, err := url.Parse(s.spec.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: bad url: %w", s.spec.Name, err)
	}
	q := u.Query()
	q.Set(s.spec.QueryParam, token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.spec.Name, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.spec.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.spec.Name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s: %w", s.spec.Name, ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%s: unexpected status %d", s.spec.Name, resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", s.spec.Name, err)
	}

	name, _ := body[s.spec.NameField].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	return &Match{DisplayName: name, Confidence: confidence(body[s.spec.ConfidenceField])}, nil
}

// confidence accepts a JSON number or numeric string, clamped to [0, 1].
func confidence(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		f, _ = strconv.ParseFloat(x, 64)
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
