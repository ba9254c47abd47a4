package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/gophsync/internal/client/remote"
	"github.com/iudanet/gophsync/internal/crypto"
	"github.com/iudanet/gophsync/pkg/api"
)

const (
	pullPath = "/api/v1/sync/pull"
	pushPath = "/api/v1/sync/push"

	// IdempotencyHeader carries a key derived from (id, version) of every record in a push batch
	IdempotencyHeader = "Idempotency-Key"
)

// ErrTokenExpired indicates that the bearer token has expired
var ErrTokenExpired = errors.New("access token expired")

// HTTPError представляет неуспешный HTTP ответ сервера
type HTTPError struct {
	Message    string
	StatusCode int
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// Client представляет HTTP клиент сервера синхронизации
type Client struct {
	httpClient *http.Client
	now        func() time.Time
	baseURL    string
	token      string
	pageLimit  int
}

var _ remote.Remote = (*Client)(nil)

// Option настраивает Client
type Option func(*Client)

// WithToken задает bearer токен
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout задает таймаут одного HTTP запроса
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithPageLimit задает максимальный размер страницы pull
func WithPageLimit(limit int) Option {
	return func(c *Client) {
		c.pageLimit = limit
	}
}

// NewClient создает новый API клиент
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		now:     time.Now,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pull получает страницу изменений после checkpoint since
func (c *Client) Pull(ctx context.Context, since string) (*api.PullResponse, error) {
	query := url.Values{}
	if since != "" {
		query.Set("since", since)
	}
	if c.pageLimit > 0 {
		query.Set("limit", strconv.Itoa(c.pageLimit))
	}

	path := pullPath
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp api.PullResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("pull request failed: %w", err)
	}
	return &resp, nil
}

// Push отправляет пакет локальных изменений
func (c *Client) Push(ctx context.Context, records []api.Record) (*api.PushResponse, error) {
	headers := map[string]string{IdempotencyHeader: IdempotencyKey(records)}

	var resp api.PushResponse
	if err := c.doRequest(ctx, http.MethodPost, pushPath, api.PushRequest{Records: records}, headers, &resp); err != nil {
		return nil, fmt.Errorf("push request failed: %w", err)
	}
	return &resp, nil
}

// IdempotencyKey возвращает ключ пакета, не зависящий от порядка записей
func IdempotencyKey(records []api.Record) string {
	refs := make([]string, 0, len(records))
	for _, r := range records {
		refs = append(refs, r.ID+"@"+strconv.FormatInt(r.Version, 10))
	}
	return crypto.SetDigest(refs)
}

// TokenExpiry возвращает срок действия JWT без проверки подписи.
// Для непрозрачных токенов и токенов без exp возвращает false.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// checkToken отклоняет заведомо просроченный JWT до отправки запроса.
// Подпись не проверяется: это делает сервер.
func (c *Client) checkToken() error {
	if c.token == "" {
		return nil
	}
	if exp, ok := TokenExpiry(c.token); ok && !c.now().Before(exp) {
		return ErrTokenExpired
	}
	return nil
}

// doRequest выполняет HTTP запрос и классифицирует ошибки для очереди синхронизации
func (c *Client) doRequest(ctx context.Context, method, path string, body any, headers map[string]string, result any) error {
	if err := c.checkToken(); err != nil {
		return remote.Permanent(err)
	}

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return remote.Permanent(fmt.Errorf("failed to marshal request body: %w", err))
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return remote.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Отмена вызывающей стороной не является сетевой ошибкой
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return ctxErr
		}
		return remote.Transient(fmt.Errorf("request failed: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return remote.Transient(fmt.Errorf("failed to read response body: %w", err))
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(respBody))}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && (errResp.Message != "" || errResp.Error != "") {
			httpErr.Message = errResp.Message
			if httpErr.Message == "" {
				httpErr.Message = errResp.Error
			}
		}
		if retryableStatus(resp.StatusCode) {
			return remote.Transient(httpErr)
		}
		return remote.Permanent(httpErr)
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return remote.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
	}

	return nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}
