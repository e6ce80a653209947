package service

import (
	"context"

	"quince/internal/ai"
	"quince/internal/model"
	"quince/internal/repository"
)

// dialogsPerPage 对话列表每页条数
const dialogsPerPage = 10

// DialogService 对话持久化服务
type DialogService struct {
	dialogs *repository.DialogRepo
	titler  *ai.Titler
}

// NewDialogService 创建对话服务
func NewDialogService(dialogs *repository.DialogRepo, titler *ai.Titler) *DialogService {
	return &DialogService{dialogs: dialogs, titler: titler}
}

// CreateDialog 新建对话。
// 前端没传标题时用第一条用户消息生成一个。
func (s *DialogService) CreateDialog(ctx context.Context, userID int64, title, firstMessage string) (string, error) {
	if title == "" {
		if firstMessage != "" && s.titler.Enabled() {
			title = s.titler.Generate(ctx, firstMessage)
		} else {
			title = ai.DefaultTitle
		}
	}
	return s.dialogs.Create(ctx, userID, title)
}

// CreateMessage 向对话追加消息
func (s *DialogService) CreateMessage(ctx context.Context, dialogID string, userID int64, role, content string) (int64, error) {
	return s.dialogs.CreateMessage(ctx, dialogID, userID, role, content)
}

// GetDialog 读取对话
func (s *DialogService) GetDialog(ctx context.Context, dialogID string, userID int64) (*model.Dialog, error) {
	return s.dialogs.Get(ctx, dialogID, userID)
}

// GetMessages 按写入顺序读取对话消息
func (s *DialogService) GetMessages(ctx context.Context, dialogID string, userID int64) ([]*model.Message, error) {
	return s.dialogs.ListMessages(ctx, dialogID, userID)
}

// DeleteDialog 删除对话及其全部消息
func (s *DialogService) DeleteDialog(ctx context.Context, dialogID string, userID int64) error {
	return s.dialogs.Delete(ctx, dialogID, userID)
}

// ListDialogs 分页列出用户的对话，page 从 1 开始
func (s *DialogService) ListDialogs(ctx context.Context, userID int64, page int) (*model.DialogsPage, error) {
	if page < 1 {
		page = 1
	}

	dialogs, err := s.dialogs.List(ctx, userID, dialogsPerPage, (page-1)*dialogsPerPage)
	if err != nil {
		return nil, err
	}
	numDialogs, err := s.dialogs.Count(ctx, userID)
	if err != nil {
		return nil, err
	}

	info := &model.DialogsPage{
		CurrentPage: page,
		PerPage:     dialogsPerPage,
		HasPrev:     page > 1,
		HasNext:     numDialogs > page*dialogsPerPage,
		Dialogs:     dialogs,
		NumDialogs:  numDialogs,
	}
	if info.HasPrev {
		info.PrevPage = page - 1
	}
	if info.HasNext {
		info.NextPage = page + 1
	}
	return info, nil
}
