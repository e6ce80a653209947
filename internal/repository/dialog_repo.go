package repository

import (
	"context"
	"database/sql"

	"quince/internal/model"
	"quince/internal/pkg/id"
	"quince/internal/pkg/sqlite"
)

// messageLimit 单个对话返回的消息上限
const messageLimit = 1000

// DialogRepo 对话与消息数据访问
type DialogRepo struct {
	client *sqlite.Client
}

// NewDialogRepo 创建对话仓库
func NewDialogRepo(client *sqlite.Client) *DialogRepo {
	return &DialogRepo{client: client}
}

// Create 新建对话，返回生成的 dialog_id
func (r *DialogRepo) Create(ctx context.Context, userID int64, title string) (string, error) {
	dialogID := id.New()
	_, err := r.client.DB().ExecContext(ctx,
		`INSERT INTO dialog (dialog_id, user_id, title) VALUES (?, ?, ?)`,
		dialogID, userID, title)
	if err != nil {
		return "", err
	}
	return dialogID, nil
}

// Get 按归属读取对话，别人的对话视为不存在
func (r *DialogRepo) Get(ctx context.Context, dialogID string, userID int64) (*model.Dialog, error) {
	row := r.client.DB().QueryRowContext(ctx,
		`SELECT dialog_id, user_id, title, created, public
		 FROM dialog WHERE dialog_id = ? AND user_id = ?`, dialogID, userID)

	var d model.Dialog
	var created string
	if err := row.Scan(&d.DialogID, &d.UserID, &d.Title, &created, &d.Public); err != nil {
		return nil, notFound(err)
	}
	d.Created = parseTime(created)
	return &d, nil
}

// Delete 删除对话，消息由外键级联删除。
// 归属校验和删除在同一条语句里完成。
func (r *DialogRepo) Delete(ctx context.Context, dialogID string, userID int64) error {
	res, err := r.client.DB().ExecContext(ctx,
		`DELETE FROM dialog WHERE dialog_id = ? AND user_id = ?`, dialogID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count 统计用户的对话数
func (r *DialogRepo) Count(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.client.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dialog WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// List 按创建时间倒序分页列出用户的对话
func (r *DialogRepo) List(ctx context.Context, userID int64, limit, offset int) ([]*model.Dialog, error) {
	rows, err := r.client.DB().QueryContext(ctx,
		`SELECT dialog_id, user_id, title, created, public
		 FROM dialog WHERE user_id = ?
		 ORDER BY created DESC, dialog_id DESC
		 LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dialogs []*model.Dialog
	for rows.Next() {
		var d model.Dialog
		var created string
		if err := rows.Scan(&d.DialogID, &d.UserID, &d.Title, &created, &d.Public); err != nil {
			return nil, err
		}
		d.Created = parseTime(created)
		dialogs = append(dialogs, &d)
	}
	return dialogs, rows.Err()
}

// UpdateTitle 更新对话标题
func (r *DialogRepo) UpdateTitle(ctx context.Context, dialogID string, userID int64, title string) error {
	_, err := r.client.DB().ExecContext(ctx,
		`UPDATE dialog SET title = ? WHERE dialog_id = ? AND user_id = ?`,
		title, dialogID, userID)
	return err
}

// CreateMessage 向对话追加一条消息，对话必须属于该用户
func (r *DialogRepo) CreateMessage(ctx context.Context, dialogID string, userID int64, role, content string) (int64, error) {
	var messageID int64
	err := r.client.WithTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM dialog WHERE dialog_id = ? AND user_id = ?`,
			dialogID, userID).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO message (dialog_id, user_id, role, content) VALUES (?, ?, ?, ?)`,
			dialogID, userID, role, content)
		if err != nil {
			return err
		}
		messageID, err = res.LastInsertId()
		return err
	})
	return messageID, err
}

// ListMessages 按写入顺序读取对话消息
func (r *DialogRepo) ListMessages(ctx context.Context, dialogID string, userID int64) ([]*model.Message, error) {
	rows, err := r.client.DB().QueryContext(ctx,
		`SELECT message_id, dialog_id, user_id, role, content, created
		 FROM message WHERE dialog_id = ? AND user_id = ?
		 ORDER BY message_id ASC
		 LIMIT ?`, dialogID, userID, messageLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		var m model.Message
		var created string
		if err := rows.Scan(&m.MessageID, &m.DialogID, &m.UserID, &m.Role, &m.Content, &created); err != nil {
			return nil, err
		}
		m.Created = parseTime(created)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
