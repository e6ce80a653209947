package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quince/internal/config"
	"quince/internal/model"
)

// ChunkStream 拉取式的流式响应迭代器
// 用法与 sql.Rows 类似：for s.Next() { s.Current() ... }; s.Err()
type ChunkStream interface {
	// Next 读取下一个分片，流结束或出错时返回 false
	Next() bool
	// Current 当前分片（Next 返回 true 后有效）
	Current() *model.StreamChunk
	// Raw 当前分片在传输层的原始 JSON（逐字转发用）
	Raw() []byte
	// Err 流终止的原因，正常结束为 nil
	Err() error
	// Close 中止流并释放连接
	Close() error
}

// Client Provider 的 HTTP 客户端（OpenAI 兼容 /chat/completions）
type Client struct {
	httpClient *http.Client
}

// NewClient 创建 Provider 客户端
// timeout 限制单次流式调用的总时长，0 表示不限制
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// StreamChat 发起流式对话调用
// 挂上 tools 后部分后端会退化为单次 JSON 响应，此处把两种情况
// 统一成 ChunkStream，调用方不需要区分
func (c *Client) StreamChat(ctx context.Context, pc config.ProviderConfig, req *model.ChatCompletionRequest) (ChunkStream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := strings.TrimSuffix(pc.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if pc.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+pc.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		return newSingleShotStream(resp.Body)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &sseStream{
		body:    resp.Body,
		scanner: scanner,
	}, nil
}

// sseStream 解析 text/event-stream 的 data: 行
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	current *model.StreamChunk
	raw     []byte
	err     error
	done    bool
}

func (s *sseStream) Next() bool {
	if s.done {
		return false
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)

		if data == "[DONE]" {
			s.done = true
			return false
		}

		var chunk model.StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			s.err = fmt.Errorf("malformed stream chunk: %w", err)
			s.done = true
			return false
		}

		s.current = &chunk
		s.raw = []byte(data)
		return true
	}

	if err := s.scanner.Err(); err != nil {
		s.err = fmt.Errorf("stream read failed: %w", err)
	}
	s.done = true
	return false
}

func (s *sseStream) Current() *model.StreamChunk { return s.current }
func (s *sseStream) Raw() []byte                 { return s.raw }
func (s *sseStream) Err() error                  { return s.err }

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}

// newSingleShotStream 把非流式 JSON 响应包装成单分片流
func newSingleShotStream(body io.ReadCloser) (ChunkStream, error) {
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	var resp model.ChatCompletionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("malformed provider response: %w", err)
	}

	chunk := completionToChunk(&resp)
	raw, err := json.Marshal(chunk)
	if err != nil {
		return nil, err
	}

	return &singleShotStream{chunk: chunk, raw: raw}, nil
}

// completionToChunk 把完整响应转为等价的增量分片
// 完整的工具调用会原样出现在 delta.tool_calls 里（名称/参数不再分片）
func completionToChunk(resp *model.ChatCompletionResponse) *model.StreamChunk {
	chunk := &model.StreamChunk{
		ID:      resp.ID,
		Object:  resp.Object,
		Created: resp.Created,
		Model:   resp.Model,
	}

	for _, choice := range resp.Choices {
		delta := model.Delta{
			Role:    choice.Message.Role,
			Content: choice.Message.Content,
		}
		for i, tc := range choice.Message.ToolCalls {
			delta.ToolCalls = append(delta.ToolCalls, model.DeltaToolCall{
				Index: i,
				ID:    tc.ID,
				Type:  tc.Type,
				Function: model.DeltaFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		chunk.Choices = append(chunk.Choices, model.StreamChoice{
			Index:        choice.Index,
			Delta:        delta,
			FinishReason: choice.FinishReason,
		})
	}

	return chunk
}

// singleShotStream 只产出一个分片的流
type singleShotStream struct {
	chunk   *model.StreamChunk
	raw     []byte
	emitted bool
}

func (s *singleShotStream) Next() bool {
	if s.emitted {
		return false
	}
	s.emitted = true
	return true
}

func (s *singleShotStream) Current() *model.StreamChunk { return s.chunk }
func (s *singleShotStream) Raw() []byte                 { return s.raw }
func (s *singleShotStream) Err() error                  { return nil }
func (s *singleShotStream) Close() error                { return nil }
