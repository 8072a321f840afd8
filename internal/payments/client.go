package payments

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPClient обёртка над resty для API провайдеров.
// GET-запросы повторяются, POST нет: создание платежа не идемпотентно.
type HTTPClient struct {
	reads  *resty.Client
	writes *resty.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	base := strings.TrimRight(baseURL, "/")
	return &HTTPClient{
		reads: resty.New().
			SetBaseURL(base).
			SetTimeout(30*time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(1*time.Second).
			SetRetryMaxWaitTime(5*time.Second).
			SetHeader("Accept", "application/json"),
		writes: resty.New().
			SetBaseURL(base).
			SetTimeout(30*time.Second).
			SetHeader("Accept", "application/json"),
	}
}

// WithHeader добавляет заголовок ко всем запросам
func (c *HTTPClient) WithHeader(key, value string) *HTTPClient {
	c.reads.SetHeader(key, value)
	c.writes.SetHeader(key, value)
	return c
}

func (c *HTTPClient) WithBearerToken(token string) *HTTPClient {
	c.reads.SetAuthToken(token)
	c.writes.SetAuthToken(token)
	return c
}

// Get запрос с повторами
func (c *HTTPClient) Get(ctx context.Context) *resty.Request {
	return c.reads.R().SetContext(ctx)
}

// Post запрос без повторов
func (c *HTTPClient) Post(ctx context.Context) *resty.Request {
	return c.writes.R().SetContext(ctx)
}

func statusIn(resp *resty.Response, codes ...int) bool {
	for _, code := range codes {
		if resp.StatusCode() == code {
			return true
		}
	}
	return false
}
