package ai

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"quince/internal/ai/component"
	"quince/internal/config"
)

// DefaultTitle 标题生成不可用时的兜底标题
const DefaultTitle = "New dialog"

const titlePrompt = "Summarize the user's message into a short dialog title of at most six words. " +
	"Reply with the title only, no quotes and no trailing punctuation."

// Titler 对话标题生成客户端。
// 用一条非流式调用为新对话取一个简短标题，失败时退回默认标题。
type Titler struct {
	cfg   *config.TitleConfig
	model model.ChatModel
}

// NewTitler 创建标题生成客户端，未配置时返回禁用的实例
func NewTitler(cfg *config.TitleConfig) (*Titler, error) {
	t := &Titler{cfg: cfg}
	if cfg.Model == "" {
		log.Info().Msg("dialog title generation disabled")
		return t, nil
	}

	m, err := component.NewChatModel(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	t.model = m
	return t, nil
}

// Enabled 是否配置了标题生成模型
func (t *Titler) Enabled() bool {
	return t.model != nil
}

// Generate 根据用户的第一条消息生成对话标题
func (t *Titler) Generate(ctx context.Context, firstMessage string) string {
	if t.model == nil {
		return DefaultTitle
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	resp, err := t.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(titlePrompt),
		schema.UserMessage(firstMessage),
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to generate dialog title")
		return DefaultTitle
	}

	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Content), `"`))
	if title == "" {
		return DefaultTitle
	}
	// 防御模型忽略长度要求
	if len(title) > 120 {
		title = title[:120]
	}
	return title
}
