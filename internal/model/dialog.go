package model

import "time"

// Dialog 对话实体（dialog 表），归属于创建它的用户
type Dialog struct {
	DialogID string    `json:"dialog_id"`
	UserID   int64     `json:"user_id"`
	Title    string    `json:"title"`
	Created  time.Time `json:"created"`
	Public   bool      `json:"public"`
}

// Message 对话消息（message 表），创建后不可修改
type Message struct {
	MessageID int64     `json:"message_id"`
	DialogID  string    `json:"dialog_id"`
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Created   time.Time `json:"created"`
}

// DialogsPage 对话分页列表
type DialogsPage struct {
	CurrentPage int       `json:"current_page"`
	PerPage     int       `json:"per_page"`
	HasPrev     bool      `json:"has_prev"`
	HasNext     bool      `json:"has_next"`
	PrevPage    int       `json:"prev_page"`
	NextPage    int       `json:"next_page"`
	Dialogs     []*Dialog `json:"dialogs"`
	NumDialogs  int       `json:"num_dialogs"`
}
