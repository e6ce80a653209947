package model

import "encoding/json"

// ChatMessage 对话中的一条消息（OpenAI 兼容格式）
// Content 为空时允许省略（assistant 的工具调用消息没有正文）
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ChatTurnRequest 一轮对话请求（POST /chat 入参，不落库）
type ChatTurnRequest struct {
	Messages []ChatMessage `json:"messages" binding:"required"`
	Model    string        `json:"model" binding:"required"`
}

// ChatCompletionRequest 发往 Provider 的请求体
type ChatCompletionRequest struct {
	Model    string            `json:"model"`
	Messages []ChatMessage     `json:"messages"`
	Tools    []ToolDeclaration `json:"tools,omitempty"`
	Stream   bool              `json:"stream"`
}

// ToolCall 完整的工具调用（流式分片累积后的结果）
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction 工具调用的函数名和参数
// Arguments 是 Provider 分片传来的原始 JSON 字符串
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDeclaration 工具声明（发给 Provider 的 tools 字段）
type ToolDeclaration struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction 工具的函数签名描述
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// StreamChunk Provider 流式响应的一个分片
type StreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
}

// StreamChoice 分片中的一个 choice
type StreamChoice struct {
	Index        int    `json:"index"`
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Delta 分片的增量内容
type Delta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []DeltaToolCall `json:"tool_calls,omitempty"`
}

// DeltaToolCall 工具调用的增量分片
// Provider 可能把函数名和参数拆到多个分片里
type DeltaToolCall struct {
	Index    int           `json:"index"`
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Function DeltaFunction `json:"function"`
}

// DeltaFunction 函数名/参数的增量片段
type DeltaFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ChatCompletionResponse Provider 的非流式响应
// 模型挂上 tools 后部分后端会退化为单次响应，需要兼容
type ChatCompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
}

// CompletionChoice 非流式响应中的一个 choice
type CompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// FinishReason 第一个 choice 的结束原因，没有则返回空串
func (c *StreamChunk) FinishReason() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].FinishReason
}

// FirstDelta 第一个 choice 的增量，没有则返回零值
func (c *StreamChunk) FirstDelta() Delta {
	if len(c.Choices) == 0 {
		return Delta{}
	}
	return c.Choices[0].Delta
}

// ErrorFrame 流内错误帧的统一编码
func ErrorFrame(message string) []byte {
	data, _ := json.Marshal(map[string]string{"error": message})
	return data
}
