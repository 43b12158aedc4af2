package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/Freeeeeet/engagement_service/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const conversationColumns = `
	id, student_id, student_name, teacher_id, teacher_name, engagement_id,
	last_message, last_message_at, unread_count_student, unread_count_teacher,
	message_seq, created_at, updated_at`

const messageColumns = `
	id, conversation_id, seq, sender_id, sender_name, sender_role,
	content, read, read_at, created_at`

type ConversationRepository struct {
	*base.Repository
}

func NewConversationRepository(b *base.Repository) *ConversationRepository {
	return &ConversationRepository{Repository: b}
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var c model.Conversation
	err := row.Scan(
		&c.ID,
		&c.StudentID,
		&c.StudentName,
		&c.TeacherID,
		&c.TeacherName,
		&c.EngagementID,
		&c.LastMessage,
		&c.LastMessageAt,
		&c.UnreadCountStudent,
		&c.UnreadCountTeacher,
		&c.MessageSeq,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	var m model.Message
	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.Seq,
		&m.SenderID,
		&m.SenderName,
		&m.SenderRole,
		&m.Content,
		&m.Read,
		&m.ReadAt,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateOrGet создаёт переписку; при гонке проигравший читает запись победителя
func (r *ConversationRepository) CreateOrGet(ctx context.Context, c *model.Conversation) (*model.Conversation, bool, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	id := c.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	query := `
		INSERT INTO conversations (id, student_id, student_name, teacher_id, teacher_name, engagement_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, teacher_id) DO NOTHING
		RETURNING ` + conversationColumns

	created, err := scanConversation(r.Pool().QueryRow(
		ctx, query,
		id,
		c.StudentID,
		c.StudentName,
		c.TeacherID,
		c.TeacherName,
		c.EngagementID,
	))
	if err == nil {
		return created, true, nil
	}
	if !base.IsNotFound(err) {
		return nil, false, base.Wrap("create conversation", err)
	}

	existing, err := scanConversation(r.Pool().QueryRow(ctx, `SELECT `+conversationColumns+`
		FROM conversations
		WHERE student_id = $1 AND teacher_id = $2`, c.StudentID, c.TeacherID))
	if err != nil {
		return nil, false, base.Wrap("get conversation by pair", err)
	}

	return existing, false, nil
}

// GetByID получает переписку по ID
func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	c, err := scanConversation(r.Pool().QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, errdefs.NotFound("conversation")
		}
		return nil, base.Wrap("get conversation", err)
	}

	return c, nil
}

// LinkEngagement проставляет engagement_id, если он не задан
func (r *ConversationRepository) LinkEngagement(ctx context.Context, id, engagementID uuid.UUID) (*model.Conversation, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	query := `
		UPDATE conversations
		SET engagement_id = COALESCE(engagement_id, $2), updated_at = now()
		WHERE id = $1
		RETURNING ` + conversationColumns

	c, err := scanConversation(r.Pool().QueryRow(ctx, query, id, engagementID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, errdefs.NotFound("conversation")
		}
		return nil, base.Wrap("link conversation engagement", err)
	}

	return c, nil
}

func participantColumn(role model.Role) (string, error) {
	switch role {
	case model.RoleStudent:
		return "student_id", nil
	case model.RoleTeacher:
		return "teacher_id", nil
	}
	return "", errdefs.Invalid("role %q has no conversations", role)
}

// ListByParticipant получает переписки пользователя
func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string, role model.Role) ([]*model.Conversation, error) {
	column, err := participantColumn(role)
	if err != nil {
		return nil, err
	}

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE ` + column + ` = $1
		ORDER BY updated_at DESC`

	rows, err := r.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, base.Wrap("list conversations", err)
	}
	defer rows.Close()

	conversations := make([]*model.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}

	if err := rows.Err(); err != nil {
		return nil, base.Wrap("list conversations", err)
	}

	return conversations, nil
}

// SumUnread суммирует счётчики непрочитанных
func (r *ConversationRepository) SumUnread(ctx context.Context, userID string, role model.Role) (int, error) {
	column, err := participantColumn(role)
	if err != nil {
		return 0, err
	}

	counter := "unread_count_student"
	if role == model.RoleTeacher {
		counter = "unread_count_teacher"
	}

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var total int
	query := `SELECT COALESCE(SUM(` + counter + `), 0) FROM conversations WHERE ` + column + ` = $1`
	if err := r.Pool().QueryRow(ctx, query, userID).Scan(&total); err != nil {
		return 0, base.Wrap("count unread", err)
	}

	return total, nil
}

// AppendMessage добавляет сообщение. Обновление строки переписки блокирует её до конца
// транзакции, поэтому seq и created_at в переписке строго возрастают.
func (r *ConversationRepository) AppendMessage(ctx context.Context, m *model.Message) (*model.Message, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	stored := *m
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.Read = false
	stored.ReadAt = nil

	var studentInc, teacherInc int
	if model.RecipientRole(stored.SenderRole) == model.RoleTeacher {
		teacherInc = 1
	} else {
		studentInc = 1
	}

	err := r.InTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE conversations
			SET message_seq = message_seq + 1,
				last_message = $2,
				last_message_at = GREATEST(clock_timestamp(), last_message_at + interval '1 microsecond'),
				updated_at = GREATEST(clock_timestamp(), last_message_at + interval '1 microsecond'),
				unread_count_student = unread_count_student + $3,
				unread_count_teacher = unread_count_teacher + $4
			WHERE id = $1
			RETURNING message_seq, last_message_at
		`, stored.ConversationID, model.Preview(stored.Content), studentInc, teacherInc).
			Scan(&stored.Seq, &stored.CreatedAt)
		if err != nil {
			if base.IsNotFound(err) {
				return errdefs.NotFound("conversation")
			}
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, seq, sender_id, sender_name, sender_role, content, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, stored.ID, stored.ConversationID, stored.Seq, stored.SenderID, stored.SenderName,
			stored.SenderRole, stored.Content, stored.CreatedAt)
		return err
	})
	if err != nil {
		return nil, base.Wrap("append message", err)
	}

	return &stored, nil
}

// MarkRead помечает прочитанными входящие для reader сообщения и обнуляет его счётчик
func (r *ConversationRepository) MarkRead(ctx context.Context, conversationID uuid.UUID, reader model.Role, at time.Time) (int64, error) {
	if reader != model.RoleStudent && reader != model.RoleTeacher {
		return 0, nil
	}

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	counter := "unread_count_student"
	if reader == model.RoleTeacher {
		counter = "unread_count_teacher"
	}

	var marked int64
	err := r.InTx(ctx, func(tx pgx.Tx) error {
		var locked uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, conversationID).Scan(&locked)
		if err != nil {
			if base.IsNotFound(err) {
				return errdefs.NotFound("conversation")
			}
			return err
		}

		// сообщения студента входят в счётчик учителя, все остальные — в счётчик студента
		tag, err := tx.Exec(ctx, `
			UPDATE messages
			SET read = true, read_at = $2
			WHERE conversation_id = $1 AND NOT read AND (sender_role = 'student') = $3
		`, conversationID, at, reader == model.RoleTeacher)
		if err != nil {
			return err
		}
		marked = tag.RowsAffected()

		_, err = tx.Exec(ctx, `UPDATE conversations SET `+counter+` = 0 WHERE id = $1`, conversationID)
		return err
	})
	if err != nil {
		return 0, base.Wrap("mark read", err)
	}

	return marked, nil
}

// ListMessages получает последние limit сообщений до beforeSeq, от старых к новым
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID uuid.UUID, beforeSeq int64, limit int) ([]*model.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND ($2::bigint = 0 OR seq < $2)
		ORDER BY seq DESC
		LIMIT $3`

	messages, err := r.listMessages(ctx, "list messages", query, conversationID, beforeSeq, limit)
	if err != nil {
		return nil, err
	}

	slices.Reverse(messages)
	return messages, nil
}

// MessagesAfter получает сообщения после afterSeq
func (r *ConversationRepository) MessagesAfter(ctx context.Context, conversationID uuid.UUID, afterSeq int64, limit int) ([]*model.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND seq > $2
		ORDER BY seq
		LIMIT $3`

	return r.listMessages(ctx, "list messages after", query, conversationID, afterSeq, limit)
}

func (r *ConversationRepository) listMessages(ctx context.Context, op, query string, args ...any) ([]*model.Message, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	rows, err := r.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, base.Wrap(op, err)
	}
	defer rows.Close()

	messages := make([]*model.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, base.Wrap(op, err)
	}

	return messages, nil
}
