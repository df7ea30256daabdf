package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"liveclass-service/internal/domain"
)

// MembershipRepository answers join authorization from the relational data:
// a lesson room admits the professor of its course and students with a
// completed enrollment; a conversation room admits its participants.
type MembershipRepository struct {
	pool *pgxpool.Pool
}

func NewMembershipRepository(pool *pgxpool.Pool) *MembershipRepository {
	return &MembershipRepository{pool: pool}
}

func (r *MembershipRepository) LessonAccess(ctx context.Context, userID, lessonID string) error {
	var allowed bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM lessons l
			JOIN courses c ON c.id = l.course_id
			WHERE l.id = $1 AND c.professor_id = $2
		) OR EXISTS (
			SELECT 1 FROM lessons l
			JOIN enrollments e ON e.course_id = l.course_id
			WHERE l.id = $1 AND e.student_id = $2 AND e.status = 'COMPLETED'
		)`, lessonID, userID).Scan(&allowed)
	if err != nil {
		return fmt.Errorf("lesson access: %w", err)
	}
	if !allowed {
		return domain.ErrNotAuthorized
	}
	return nil
}

func (r *MembershipRepository) ConversationAccess(ctx context.Context, userID, conversationID string) error {
	var allowed bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)`, conversationID, userID).Scan(&allowed)
	if err != nil {
		return fmt.Errorf("conversation access: %w", err)
	}
	if !allowed {
		return domain.ErrNotAuthorized
	}
	return nil
}
