package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"quince/internal/model"
	"quince/internal/provider"
	"quince/internal/repository"
	"quince/internal/tools"
)

// 流式响应里的用户可见错误文案
const (
	errProviderMsg  = "An error occured. Please try again later"
	errStreamingMsg = "Streaming failed"
)

// Emit 向客户端发送一帧数据（SSE data 帧的 payload）。
// 返回错误表示客户端已断开，中继应立即停止。
type Emit func(frame []byte) error

// ChatService 对话中继。
// 把一轮对话转发给模型后端，把流式分片原样透传给客户端，
// 途中拦截工具调用：执行工具后带着结果发起第二次调用再继续透传。
type ChatService struct {
	providers *provider.Registry
	client    *provider.Client
	tools     *tools.Registry
	cache     *repository.CacheRepo
}

// NewChatService 创建对话中继服务
func NewChatService(providers *provider.Registry, client *provider.Client, toolReg *tools.Registry, cache *repository.CacheRepo) *ChatService {
	return &ChatService{
		providers: providers,
		client:    client,
		tools:     toolReg,
		cache:     cache,
	}
}

// ModelNames 已配置的模型名列表（GET /list）
func (s *ChatService) ModelNames() []string {
	return s.providers.ModelNames()
}

// DefaultModel 默认模型名
func (s *ChatService) DefaultModel() string {
	return s.providers.DefaultModel()
}

// Resolve 校验模型是否已配置。
// 未配置的模型在开流之前报错，调用方可以返回普通的 JSON 错误。
func (s *ChatService) Resolve(modelName string) error {
	_, err := s.providers.Resolve(modelName)
	return err
}

// Stream 执行一轮对话中继。
// 开流之后发生的错误通过 emit 发给客户端一帧 {"error": ...}，
// 不再返回 error；开流之前的错误（模型未配置）直接返回。
func (s *ChatService) Stream(ctx context.Context, userID int64, req *model.ChatTurnRequest, emit Emit) error {
	pc, err := s.providers.Resolve(req.Model)
	if err != nil {
		return err
	}

	messages := s.withSystemMessage(ctx, userID, req.Messages)

	chatReq := &model.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	}
	if s.tools.Enabled(req.Model) {
		chatReq.Tools = s.tools.Declarations()
	}

	stream, err := s.client.StreamChat(ctx, pc, chatReq)
	if err != nil {
		log.Error().Err(err).Str("model", req.Model).Msg("chat completion request failed")
		_ = emit(model.ErrorFrame(errProviderMsg))
		return nil
	}
	defer stream.Close()

	toolCall, done := s.forward(stream, emit)
	if done {
		return nil
	}
	if err := stream.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		log.Error().Err(err).Str("model", req.Model).Msg("streaming error")
		_ = emit(model.ErrorFrame(errStreamingMsg))
		return nil
	}
	if toolCall == nil {
		return nil
	}

	// 工具回合：执行工具，带着结果发起第二次调用。
	// 执行失败不终止本轮，失败信息作为工具结果继续对话。
	result, err := s.tools.Invoke(ctx, toolCall.Function.Name, toolCall.Function.Arguments)
	if err != nil {
		if errors.Is(err, tools.ErrToolNotFound) {
			_ = emit(model.ErrorFrame(fmt.Sprintf("Unknown tool: %s", toolCall.Function.Name)))
			return nil
		}
		log.Error().Err(err).Str("tool", toolCall.Function.Name).Msg("tool invocation failed")
		result = fmt.Sprintf("Tool call failed for function: %s", toolCall.Function.Name)
	}

	messages = append(messages,
		model.ChatMessage{Role: "assistant", ToolCalls: []model.ToolCall{*toolCall}},
		model.ChatMessage{Role: "tool", Content: result, ToolCallID: toolCall.ID},
	)

	// 第二次调用不再附带工具声明，不再拦截
	second, err := s.client.StreamChat(ctx, pc, &model.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		log.Error().Err(err).Str("model", req.Model).Msg("follow-up completion request failed")
		_ = emit(model.ErrorFrame(errProviderMsg))
		return nil
	}
	defer second.Close()

	for second.Next() {
		if emit(second.Raw()) != nil {
			return nil
		}
	}
	if err := second.Err(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Str("model", req.Model).Msg("streaming error")
		_ = emit(model.ErrorFrame(errStreamingMsg))
	}
	return nil
}

// forward 透传第一次调用的分片并累积工具调用。
// Provider 会把一次工具调用的函数名和参数拆到多个分片里，
// 第一个分片带 id 和 type，后续分片只带增量，这里按序拼接。
// 返回累积好的工具调用（可能为 nil）和客户端是否已断开。
func (s *ChatService) forward(stream provider.ChunkStream, emit Emit) (*model.ToolCall, bool) {
	var toolCall *model.ToolCall

	for stream.Next() {
		chunk := stream.Current()
		delta := chunk.FirstDelta()

		if len(delta.ToolCalls) > 0 {
			call := delta.ToolCalls[0]
			if toolCall == nil {
				toolCall = &model.ToolCall{ID: call.ID, Type: call.Type}
			}
			toolCall.Function.Name += call.Function.Name
			toolCall.Function.Arguments += call.Function.Arguments
		}

		// 工具调用的收尾分片不透传，后续对话由工具回合继续
		if chunk.FinishReason() == "tool_calls" {
			return toolCall, false
		}

		if emit(stream.Raw()) != nil {
			return nil, true
		}
	}
	return toolCall, false
}

// withSystemMessage 把用户资料里的系统提示词插到消息列表最前面。
// 对话自带开头的 system 消息时不覆盖。
func (s *ChatService) withSystemMessage(ctx context.Context, userID int64, messages []model.ChatMessage) []model.ChatMessage {
	if userID == 0 {
		return messages
	}
	if len(messages) > 0 && messages[0].Role == "system" {
		return messages
	}

	var profile model.Profile
	if err := s.cache.Get(ctx, profileKey(userID), &profile, 0); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Error().Err(err).Int64("user_id", userID).Msg("failed to load profile")
		}
		return messages
	}
	if profile.SystemMessage == "" {
		return messages
	}

	out := make([]model.ChatMessage, 0, len(messages)+1)
	out = append(out, model.ChatMessage{Role: "system", Content: profile.SystemMessage})
	return append(out, messages...)
}
