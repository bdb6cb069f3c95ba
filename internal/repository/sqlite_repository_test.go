package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loopchat/backend/internal/model"
	"loopchat/backend/internal/repository"
)

func setupRepo(t *testing.T) (repository.Repository, sqlmock.Sqlmock) {
	db, mockDB, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewSQLiteRepository(db), mockDB
}

func TestSQLiteRepository_GetChat(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Found with session owner", func(t *testing.T) {
		repo, mockDB := setupRepo(t)
		rows := sqlmock.NewRows([]string{"id", "user_id", "session_id", "title", "created_at", "updated_at"}).
			AddRow("chat1", nil, "sess1", "Title", now, now)
		mockDB.ExpectQuery("SELECT id, user_id, session_id, title, created_at, updated_at FROM chats").
			WithArgs("chat1").
			WillReturnRows(rows)

		chat, err := repo.GetChat(ctx, "chat1")
		require.NoError(t, err)
		assert.Nil(t, chat.UserID)
		require.NotNil(t, chat.SessionID)
		assert.Equal(t, "sess1", *chat.SessionID)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("Not found maps to repository.ErrNotFound", func(t *testing.T) {
		repo, mockDB := setupRepo(t)
		mockDB.ExpectQuery("SELECT id, user_id, session_id, title, created_at, updated_at FROM chats").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "session_id", "title", "created_at", "updated_at"}))

		_, err := repo.GetChat(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestSQLiteRepository_AddMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("Inserts message and bumps chat timestamp transactionally", func(t *testing.T) {
		repo, mockDB := setupRepo(t)
		mockDB.ExpectBegin()
		mockDB.ExpectExec("INSERT INTO messages").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mockDB.ExpectExec("UPDATE chats SET updated_at").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectCommit()

		msg := &model.Message{
			ID:        "msg1",
			Role:      model.RoleUser,
			Content:   "hello",
			Parts:     []model.Part{model.TextPart("hello")},
			CreatedAt: time.Now().UTC(),
		}
		err := repo.AddMessage(ctx, "chat1", msg)
		assert.NoError(t, err)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("Rolls back when the insert fails", func(t *testing.T) {
		repo, mockDB := setupRepo(t)
		mockDB.ExpectBegin()
		mockDB.ExpectExec("INSERT INTO messages").
			WillReturnError(assert.AnError)
		mockDB.ExpectRollback()

		err := repo.AddMessage(ctx, "chat1", &model.Message{ID: "msg1", Role: model.RoleUser})
		assert.Error(t, err)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestSQLiteRepository_GetMessages(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	repo, mockDB := setupRepo(t)

	partsPayload := `{"parts":[{"type":"text","text":"hi"}]}`
	rows := sqlmock.NewRows([]string{"id", "chat_id", "parent_id", "role", "content", "parts", "created_at"}).
		AddRow("m1", "chat1", nil, "user", "hello", nil, now).
		AddRow("m2", "chat1", "m1", "assistant", "hi", partsPayload, now.Add(time.Second))
	mockDB.ExpectQuery("SELECT id, chat_id, parent_id, role, content, parts, created_at").
		WithArgs("chat1").
		WillReturnRows(rows)

	messages, err := repo.GetMessages(ctx, "chat1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Nil(t, messages[0].Parts)
	require.NotNil(t, messages[1].ParentID)
	assert.Equal(t, "m1", *messages[1].ParentID)
	require.Len(t, messages[1].Parts, 1)
	assert.Equal(t, model.PartTypeText, messages[1].Parts[0].Type)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestSQLiteRepository_ToolCalls(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("CreateToolCall", func(t *testing.T) {
		repo, mockDB := setupRepo(t)
		mockDB.ExpectExec("INSERT INTO tool_calls").
			WillReturnResult(sqlmock.NewResult(1, 1))

		call := &model.ToolCall{
			ID:        "fc-login_user_start-abc",
			MessageID: "m2",
			ToolName:  "login_user_start",
			Input:     []byte(`{"email":"a@b.co"}`),
			Output:    []byte(`{"ok":true}`),
			Status:    model.ToolCallSuccess,
			CreatedAt: now,
		}
		assert.NoError(t, repo.CreateToolCall(ctx, call))
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("GetToolCallsByChat in call order", func(t *testing.T) {
		repo, mockDB := setupRepo(t)
		rows := sqlmock.NewRows([]string{"id", "message_id", "tool_name", "input", "output", "status", "error", "created_at"}).
			AddRow("fc-1", "m2", "login_user_start", `{"email":"a@b.co"}`, `{"ok":true}`, "success", nil, now).
			AddRow("fc-2", "m4", "login_user_verify", `{"code":"123456"}`, nil, "pending", nil, now.Add(time.Second))
		mockDB.ExpectQuery("SELECT t.id, t.message_id, t.tool_name").
			WithArgs("chat1").
			WillReturnRows(rows)

		calls, err := repo.GetToolCallsByChat(ctx, "chat1")
		require.NoError(t, err)
		require.Len(t, calls, 2)
		assert.Equal(t, "fc-1", calls[0].ID)
		assert.Equal(t, model.ToolCallPending, calls[1].Status)
		assert.Nil(t, calls[1].Output)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}
