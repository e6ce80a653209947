package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"quince/internal/pkg/sqlite"
)

// newTestDB 打开一个独立的内存数据库并建表
func newTestDB(t *testing.T) *sqlite.Client {
	t.Helper()

	client, err := sqlite.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// 共享内存库在最后一个连接关闭时销毁，固定单连接保住它
	client.DB().SetMaxOpenConns(1)

	if err := client.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// createTestUser 外键约束要求消息和对话挂在真实用户上
func createTestUser(t *testing.T, users *UserRepo, email string) int64 {
	t.Helper()
	userID, err := users.Create(context.Background(), email, "hash", "random-"+email)
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return userID
}

func TestDialogCRUD(t *testing.T) {
	Convey("对话增删查", t, func() {
		db := newTestDB(t)
		dialogs := NewDialogRepo(db)
		users := NewUserRepo(db)
		ctx := context.Background()

		userID := createTestUser(t, users, "a@example.com")
		otherID := createTestUser(t, users, "b@example.com")

		dialogID, err := dialogs.Create(ctx, userID, "First dialog")
		So(err, ShouldBeNil)
		So(dialogID, ShouldNotBeEmpty)

		Convey("归属用户可以读取", func() {
			d, err := dialogs.Get(ctx, dialogID, userID)
			So(err, ShouldBeNil)
			So(d.Title, ShouldEqual, "First dialog")
			So(d.UserID, ShouldEqual, userID)
		})

		Convey("别人的对话视为不存在", func() {
			_, err := dialogs.Get(ctx, dialogID, otherID)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("别人不能删除", func() {
			err := dialogs.Delete(ctx, dialogID, otherID)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)

			_, err = dialogs.Get(ctx, dialogID, userID)
			So(err, ShouldBeNil)
		})

		Convey("删除对话后级联删除消息", func() {
			_, err := dialogs.CreateMessage(ctx, dialogID, userID, "user", "hello")
			So(err, ShouldBeNil)
			_, err = dialogs.CreateMessage(ctx, dialogID, userID, "assistant", "hi there")
			So(err, ShouldBeNil)

			So(dialogs.Delete(ctx, dialogID, userID), ShouldBeNil)

			var n int
			err = db.DB().QueryRowContext(ctx,
				`SELECT COUNT(*) FROM message WHERE dialog_id = ?`, dialogID).Scan(&n)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})
	})
}

func TestCascadeAcrossPoolConnections(t *testing.T) {
	Convey("级联删除在连接池的任意连接上都生效", t, func() {
		// 文件库 + 不复用空闲连接，让每条语句都落在新建连接上
		client, err := sqlite.Open(filepath.Join(t.TempDir(), "cascade.db"))
		So(err, ShouldBeNil)
		t.Cleanup(func() { client.Close() })
		client.DB().SetMaxIdleConns(0)
		So(client.Migrate(), ShouldBeNil)

		dialogs := NewDialogRepo(client)
		users := NewUserRepo(client)
		ctx := context.Background()

		userID := createTestUser(t, users, "a@example.com")
		dialogID, err := dialogs.Create(ctx, userID, "d1")
		So(err, ShouldBeNil)
		_, err = dialogs.CreateMessage(ctx, dialogID, userID, "user", "hello")
		So(err, ShouldBeNil)

		Convey("新建连接上外键开关已打开", func() {
			var on int
			So(client.DB().QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&on), ShouldBeNil)
			So(on, ShouldEqual, 1)
		})

		Convey("删除对话后没有孤儿消息", func() {
			So(dialogs.Delete(ctx, dialogID, userID), ShouldBeNil)

			var n int
			So(client.DB().QueryRowContext(ctx,
				`SELECT COUNT(*) FROM message WHERE dialog_id = ?`, dialogID).Scan(&n), ShouldBeNil)
			So(n, ShouldEqual, 0)
		})
	})
}

func TestMessages(t *testing.T) {
	Convey("对话消息", t, func() {
		db := newTestDB(t)
		dialogs := NewDialogRepo(db)
		users := NewUserRepo(db)
		ctx := context.Background()

		userID := createTestUser(t, users, "a@example.com")
		otherID := createTestUser(t, users, "b@example.com")
		dialogID, err := dialogs.Create(ctx, userID, "d1")
		So(err, ShouldBeNil)

		Convey("消息按写入顺序读回", func() {
			for i := 0; i < 5; i++ {
				role := "user"
				if i%2 == 1 {
					role = "assistant"
				}
				_, err := dialogs.CreateMessage(ctx, dialogID, userID, role, fmt.Sprintf("msg %d", i))
				So(err, ShouldBeNil)
			}

			messages, err := dialogs.ListMessages(ctx, dialogID, userID)
			So(err, ShouldBeNil)
			So(messages, ShouldHaveLength, 5)
			for i, m := range messages {
				So(m.Content, ShouldEqual, fmt.Sprintf("msg %d", i))
			}
		})

		Convey("不能往别人的对话里写消息", func() {
			_, err := dialogs.CreateMessage(ctx, dialogID, otherID, "user", "intruder")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("读不到别人对话的消息", func() {
			_, err := dialogs.CreateMessage(ctx, dialogID, userID, "user", "private")
			So(err, ShouldBeNil)

			messages, err := dialogs.ListMessages(ctx, dialogID, otherID)
			So(err, ShouldBeNil)
			So(messages, ShouldBeEmpty)
		})
	})
}

func TestListDialogs(t *testing.T) {
	Convey("对话分页", t, func() {
		db := newTestDB(t)
		dialogs := NewDialogRepo(db)
		users := NewUserRepo(db)
		ctx := context.Background()

		userID := createTestUser(t, users, "a@example.com")

		for i := 0; i < 13; i++ {
			_, err := dialogs.Create(ctx, userID, fmt.Sprintf("dialog %d", i))
			So(err, ShouldBeNil)
		}

		Convey("Count 统计全部对话", func() {
			n, err := dialogs.Count(ctx, userID)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 13)
		})

		Convey("分页不重不漏", func() {
			page1, err := dialogs.List(ctx, userID, 10, 0)
			So(err, ShouldBeNil)
			So(page1, ShouldHaveLength, 10)

			page2, err := dialogs.List(ctx, userID, 10, 10)
			So(err, ShouldBeNil)
			So(page2, ShouldHaveLength, 3)

			seen := make(map[string]bool)
			for _, d := range append(page1, page2...) {
				So(seen[d.DialogID], ShouldBeFalse)
				seen[d.DialogID] = true
			}
			So(seen, ShouldHaveLength, 13)
		})
	})
}

func TestCacheRepo(t *testing.T) {
	Convey("持久化键值缓存", t, func() {
		db := newTestDB(t)
		cache := NewCacheRepo(db)
		ctx := context.Background()

		Convey("写入后可以读回", func() {
			So(cache.Set(ctx, "k1", map[string]string{"a": "b"}), ShouldBeNil)

			var got map[string]string
			So(cache.Get(ctx, "k1", &got, 0), ShouldBeNil)
			So(got["a"], ShouldEqual, "b")
		})

		Convey("重复写入覆盖旧值", func() {
			So(cache.Set(ctx, "k1", "old"), ShouldBeNil)
			So(cache.Set(ctx, "k1", "new"), ShouldBeNil)

			var got string
			So(cache.Get(ctx, "k1", &got, 0), ShouldBeNil)
			So(got, ShouldEqual, "new")

			var n int
			err := db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM cache WHERE key = 'k1'`).Scan(&n)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("不存在的 key 返回 ErrNotFound", func() {
			var got string
			So(errors.Is(cache.Get(ctx, "missing", &got, 0), ErrNotFound), ShouldBeTrue)
		})

		Convey("过期窗口之外的条目视为不存在", func() {
			_, err := db.DB().ExecContext(ctx,
				`INSERT INTO cache (key, value, unix_timestamp) VALUES ('k3', '"v"', ?)`,
				time.Now().Add(-time.Hour).Unix())
			So(err, ShouldBeNil)

			var got string
			So(errors.Is(cache.Get(ctx, "k3", &got, time.Minute), ErrNotFound), ShouldBeTrue)

			Convey("窗口足够大时仍能读到", func() {
				So(cache.Get(ctx, "k3", &got, 2*time.Hour), ShouldBeNil)
				So(got, ShouldEqual, "v")
			})
		})
	})
}
