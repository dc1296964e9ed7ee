// Package webhook 出站通知客户端。
// 到期提醒通过 HTTP POST 推送到配置的回调地址（办公IM机器人、告警网关等）
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notification 一条出站通知
type Notification struct {
	Event      string                 `json:"event"`
	Message    string                 `json:"message"`
	Recipients []string               `json:"recipients"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	SentAt     time.Time              `json:"sent_at"`
}

// Client webhook 客户端
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient 创建 webhook 客户端。url 为空时客户端处于禁用状态，Notify 直接返回
func NewClient(url string) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled 是否配置了回调地址
func (c *Client) Enabled() bool {
	return c.url != ""
}

// Notify 推送一条通知
func (c *Client) Notify(ctx context.Context, n Notification) error {
	if !c.Enabled() {
		return nil
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now()
	}

	bodyBytes, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
