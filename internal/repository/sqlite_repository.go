package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"loopchat/backend/internal/model"
)

type sqliteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) Repository {
	return &sqliteRepository{db: db}
}

func (r *sqliteRepository) CreateChat(ctx context.Context, chat *model.Chat) error {
	query := "INSERT INTO chats (id, user_id, session_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)"
	_, err := r.db.ExecContext(ctx, query, chat.ID, chat.UserID, chat.SessionID, chat.Title, chat.CreatedAt, chat.UpdatedAt)
	return err
}

func (r *sqliteRepository) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	query := "SELECT id, user_id, session_id, title, created_at, updated_at FROM chats WHERE id = ?"
	row := r.db.QueryRowContext(ctx, query, chatID)

	var chat model.Chat
	var userID, sessionID sql.NullString
	err := row.Scan(&chat.ID, &userID, &sessionID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if userID.Valid {
		chat.UserID = &userID.String
	}
	if sessionID.Valid {
		chat.SessionID = &sessionID.String
	}
	return &chat, nil
}

func (r *sqliteRepository) GetChats(ctx context.Context, ident model.Identity) ([]*model.Chat, error) {
	query := `
		SELECT id, user_id, session_id, title, created_at, updated_at
		FROM chats
		WHERE (user_id IS NOT NULL AND user_id = ?) OR (session_id IS NOT NULL AND session_id = ?)
		ORDER BY updated_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, ident.UserID, ident.SessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*model.Chat
	for rows.Next() {
		var chat model.Chat
		var userID, sessionID sql.NullString
		if err := rows.Scan(&chat.ID, &userID, &sessionID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			chat.UserID = &userID.String
		}
		if sessionID.Valid {
			chat.SessionID = &sessionID.String
		}
		chats = append(chats, &chat)
	}
	return chats, rows.Err()
}

func (r *sqliteRepository) UpdateChatTitle(ctx context.Context, chatID, newTitle string) error {
	query := "UPDATE chats SET title = ?, updated_at = ? WHERE id = ?"
	res, err := r.db.ExecContext(ctx, query, newTitle, time.Now().UTC(), chatID)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteRepository) DeleteChat(ctx context.Context, chatID string) error {
	query := "DELETE FROM chats WHERE id = ?"
	_, err := r.db.ExecContext(ctx, query, chatID)
	return err
}

// AddMessage inserts the message and bumps the chat timestamp in one
// transaction so list ordering always reflects the latest turn.
func (r *sqliteRepository) AddMessage(ctx context.Context, chatID string, message *model.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	parts, err := model.EncodeParts(message.Parts)
	if err != nil {
		return fmt.Errorf("could not encode message parts: %w", err)
	}

	insertMsgQuery := `
		INSERT INTO messages (id, chat_id, parent_id, role, content, parts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, insertMsgQuery,
		message.ID,
		chatID,
		message.ParentID,
		message.Role,
		message.Content,
		string(parts),
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("could not insert message: %w", err)
	}

	updateChatQuery := "UPDATE chats SET updated_at = ? WHERE id = ?"
	if _, err := tx.ExecContext(ctx, updateChatQuery, time.Now().UTC(), chatID); err != nil {
		return fmt.Errorf("could not update chat timestamp: %w", err)
	}

	return tx.Commit()
}

func (r *sqliteRepository) GetMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	query := `
		SELECT id, chat_id, parent_id, role, content, parts, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var msg model.Message
		var parentID, parts sql.NullString

		if err := rows.Scan(&msg.ID, &msg.ChatID, &parentID, &msg.Role, &msg.Content, &parts, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if parentID.Valid {
			msg.ParentID = &parentID.String
		}
		if parts.Valid {
			decoded, err := model.DecodeParts([]byte(parts.String))
			if err != nil {
				return nil, fmt.Errorf("could not decode parts of message %s: %w", msg.ID, err)
			}
			msg.Parts = decoded
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *sqliteRepository) CreateToolCall(ctx context.Context, call *model.ToolCall) error {
	query := `
		INSERT INTO tool_calls (id, message_id, tool_name, input, output, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	var input, output sql.NullString
	if len(call.Input) > 0 {
		input = sql.NullString{String: string(call.Input), Valid: true}
	}
	if len(call.Output) > 0 {
		output = sql.NullString{String: string(call.Output), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		call.ID, call.MessageID, call.ToolName, input, output, call.Status, call.Error, call.CreatedAt)
	return err
}

func (r *sqliteRepository) UpdateToolCallResult(ctx context.Context, callID string, output []byte, status string, errDetail *string) (bool, error) {
	query := "UPDATE tool_calls SET output = ?, status = ?, error = ? WHERE id = ?"
	var out sql.NullString
	if len(output) > 0 {
		out = sql.NullString{String: string(output), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, query, out, status, errDetail, callID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetToolCallsByChat returns, in call order, every tool call owned by a
// message of the given chat.
func (r *sqliteRepository) GetToolCallsByChat(ctx context.Context, chatID string) ([]model.ToolCall, error) {
	query := `
		SELECT t.id, t.message_id, t.tool_name, t.input, t.output, t.status, t.error, t.created_at
		FROM tool_calls t
		JOIN messages m ON m.id = t.message_id
		WHERE m.chat_id = ?
		ORDER BY t.created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []model.ToolCall
	for rows.Next() {
		var call model.ToolCall
		var input, output, callErr sql.NullString
		if err := rows.Scan(&call.ID, &call.MessageID, &call.ToolName, &input, &output, &call.Status, &callErr, &call.CreatedAt); err != nil {
			return nil, err
		}
		if input.Valid {
			call.Input = []byte(input.String)
		}
		if output.Valid {
			call.Output = []byte(output.String)
		}
		if callErr.Valid {
			call.Error = &callErr.String
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}
