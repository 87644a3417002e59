package enrichment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sbomtools/sbomdiff/common"
)

// Client is the single HTTP boundary for advisory providers. Enrichment
// is the only place the core performs network I/O, and it is always
// called from outside the matching and diff phases.
type Client interface {
	Endpoint() string
	Get(ctx context.Context, request *Request) *Response
	Post(ctx context.Context, request *Request) *Response
	WithTimeout(timeout time.Duration) Client
	Uncritical() Client
}

type Request struct {
	Url     string
	Headers map[string]string
	Body    io.Reader
}

type Response struct {
	Status  int
	Err     error
	Body    []byte
	Elapsed common.Duration
}

type internalClient struct {
	endpoint string
	client   *http.Client
	critical bool
	retries  uint64
}

func EnsureHttps(endpoint string) (string, error) {
	nice := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	parsed, err := url.Parse(nice)
	if err != nil {
		return "", err
	}
	if parsed.Host == "127.0.0.1" || strings.HasPrefix(parsed.Host, "127.0.0.1:") {
		return nice, nil
	}
	if parsed.Scheme != "https" {
		return "", fmt.Errorf("Endpoint '%s' must start with https:// prefix.", nice)
	}
	return nice, nil
}

func NewClient(endpoint string) (Client, error) {
	https, err := EnsureHttps(endpoint)
	if err != nil {
		return nil, err
	}
	return &internalClient{
		endpoint: https,
		client:   &http.Client{Timeout: 30 * time.Second},
		critical: true,
		retries:  3,
	}, nil
}

func (it *internalClient) Endpoint() string {
	return it.endpoint
}

func (it *internalClient) Uncritical() Client {
	duplicate := *it
	duplicate.critical = false
	return &duplicate
}

func (it *internalClient) WithTimeout(timeout time.Duration) Client {
	duplicate := *it
	duplicate.client = &http.Client{Timeout: timeout}
	return &duplicate
}

func (it *internalClient) Get(ctx context.Context, request *Request) *Response {
	return it.does(ctx, http.MethodGet, request)
}

func (it *internalClient) Post(ctx context.Context, request *Request) *Response {
	return it.does(ctx, http.MethodPost, request)
}

// does retries transient failures with exponential backoff; 4xx
// responses are final.
func (it *internalClient) does(ctx context.Context, method string, request *Request) *Response {
	stopwatch := common.Stopwatch("%s %s%s", method, it.endpoint, request.Url)
	response := new(Response)
	defer func() {
		response.Elapsed = stopwatch.Elapsed()
		if response.Err != nil {
			if it.critical {
				common.Error("http", response.Err)
			} else {
				common.Uncritical("http", response.Err)
			}
		}
	}()

	attempt := func() error {
		target := it.endpoint + request.Url
		httpRequest, err := http.NewRequestWithContext(ctx, method, target, request.Body)
		if err != nil {
			return backoff.Permanent(err)
		}
		for key, value := range request.Headers {
			httpRequest.Header.Set(key, value)
		}
		httpResponse, err := it.client.Do(httpRequest)
		if err != nil {
			return err
		}
		defer httpResponse.Body.Close()
		body, err := io.ReadAll(httpResponse.Body)
		if err != nil {
			return err
		}
		response.Status = httpResponse.StatusCode
		response.Body = body
		if httpResponse.StatusCode >= 500 {
			return fmt.Errorf("server error %d from %s", httpResponse.StatusCode, target)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), it.retries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		response.Err = err
	}
	return response
}
