// Package api 封装 OnChain 后端 REST 协议
//
// 所有响应使用统一信封 {code, msg, data}: code == 0 表示传输层
// 成功; 订单确认类接口在 data 内另带业务级 success 标志，由调用
// 方单独检查。
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
	"sync"
	"time"

	"github.com/onchain-fund/onchain-trade/internal/metrics"
)

var (
	// ErrNoToken 未登录 (需要先完成钱包连接换取会话 token)
	ErrNoToken = errors.New("no session token")
)

// Error 传输层信封错误 (code != 0)
type Error struct {
	Code int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Msg)
}

// DomainError 业务级失败 (success == false)，消息原样透传给用户
type DomainError struct {
	Msg string
}

func (e *DomainError) Error() string {
	if e.Msg == "" {
		return "order rejected"
	}
	return e.Msg
}

// envelope 统一响应信封
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Client 后端 REST 客户端
type Client struct {
	httpClient *http.Client
	baseURL    string

	mu    sync.RWMutex
	token string
}

// NewClient 创建客户端
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// SetToken 设置会话 token (登录成功后调用)
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ClearToken 清除会话 token (钱包断开时调用)
func (c *Client) ClearToken() {
	c.SetToken("")
}

// Token 当前会话 token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// HasToken 是否持有会话
func (c *Client) HasToken() bool {
	return c.Token() != ""
}

func (c *Client) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if env.Code != 0 {
		return &Error{Code: env.Code, Msg: env.Msg}
	}

	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}

	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload, result interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}

	start := time.Now()
	err = c.doRequest(req, result)
	metrics.RecordBackendRequest(endpoint, time.Since(start).Seconds())
	return err
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}

	start := time.Now()
	err = c.doRequest(req, result)
	metrics.RecordBackendRequest(endpoint, time.Since(start).Seconds())
	return err
}
