package messaging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caregrid/caregrid/internal/platform/audit"
	"github.com/caregrid/caregrid/internal/platform/errs"
	"github.com/caregrid/caregrid/internal/platform/tenant"
)

// Service is the messaging engine. Every operation requires an open tenant
// scope: the organization id always comes from the scope, never from the
// request payload, so a failed operation can never leave a row attributed
// to the wrong organization.
type Service struct {
	repo    Repository
	auditor *audit.Service
	logger  zerolog.Logger
}

func NewService(repo Repository, auditor *audit.Service, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		auditor: auditor,
		logger:  logger.With().Str("component", "messaging").Logger(),
	}
}

func requireScope(ctx context.Context) (tenant.Scope, error) {
	scope, ok := tenant.ScopeFromContext(ctx)
	if !ok {
		return tenant.Scope{}, fmt.Errorf("messaging requires an open tenant scope: %w", errs.ErrNoOrganizationContext)
	}
	return scope, nil
}

// SendRequest carries caller input for Send. Any organization hint in the
// transport payload is ignored; the scope decides.
type SendRequest struct {
	ToUserID        *uuid.UUID
	ThreadID        *uuid.UUID
	ParentMessageID *uuid.UUID
	Subject         string
	Content         string
}

// Send appends one message. The sender is the scope's acting user. A reply
// inherits its parent's thread; a message with no thread starts one, using
// its own id as the thread id.
func (s *Service) Send(ctx context.Context, req SendRequest) (*Message, error) {
	scope, err := requireScope(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("message content is required: %w", errs.ErrValidation)
	}

	m := &Message{
		ID:             uuid.New(),
		OrganizationID: scope.OrganizationID,
		FromUserID:     scope.ActingUserID,
		ToUserID:       req.ToUserID,
		Subject:        strings.TrimSpace(req.Subject),
		Content:        req.Content,
		CreatedAt:      time.Now().UTC(),
	}

	switch {
	case req.ParentMessageID != nil:
		parent, err := s.repo.GetByID(ctx, scope.OrganizationID, *req.ParentMessageID)
		if err != nil {
			return nil, err
		}
		m.ThreadID = parent.ThreadID
		m.ParentMessageID = req.ParentMessageID
	case req.ThreadID != nil:
		if err := s.requireParticipant(ctx, scope, *req.ThreadID); err != nil {
			return nil, err
		}
		m.ThreadID = *req.ThreadID
	default:
		m.ThreadID = m.ID
	}

	if err := s.repo.Insert(ctx, m); err != nil {
		return nil, err
	}

	if err := s.auditor.Append(ctx, &audit.Entry{
		OrganizationID: scope.OrganizationID,
		ActorID:        scope.ActingUserID,
		Action:         "message_sent",
		ResourceType:   "message",
		ResourceID:     m.ID.String(),
		Metadata:       map[string]string{"thread_id": m.ThreadID.String()},
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// ListConversations groups the user's messages by thread. Threads where
// every message is archived for the user are excluded. Conversations are
// ordered by last-message time descending, ties broken by message id
// ascending so the order is deterministic.
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID) ([]*Conversation, error) {
	scope, err := requireScope(ctx)
	if err != nil {
		return nil, err
	}

	msgs, err := s.repo.ListForUser(ctx, scope.OrganizationID, userID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return []*Conversation{}, nil
	}

	ids := make([]uuid.UUID, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	states, err := s.repo.States(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	byThread := make(map[uuid.UUID][]*Message)
	for _, m := range msgs {
		byThread[m.ThreadID] = append(byThread[m.ThreadID], m)
	}

	var out []*Conversation
	for threadID, thread := range byThread {
		allArchived := true
		unread := 0
		var last *Message
		for _, m := range thread {
			st := states[m.ID]
			if !st.Archived {
				allArchived = false
			}
			if m.ToUserID != nil && *m.ToUserID == userID && !st.Read {
				unread++
			}
			if last == nil || newerThan(m, last) {
				last = m
			}
		}
		if allArchived {
			continue
		}
		out = append(out, &Conversation{
			ThreadID:    threadID,
			LastMessage: last,
			UnreadCount: unread,
			Total:       len(thread),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMessage, out[j].LastMessage
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return strings.Compare(a.ID.String(), b.ID.String()) < 0
	})
	return out, nil
}

// GetThread returns the thread's messages in ascending order. The acting
// user must be a participant of at least one message; non-participants get
// ErrForbidden, an absent thread ErrNotFound.
func (s *Service) GetThread(ctx context.Context, threadID uuid.UUID) ([]*Message, error) {
	scope, err := requireScope(ctx)
	if err != nil {
		return nil, err
	}

	msgs, err := s.repo.ListByThread(ctx, scope.OrganizationID, threadID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("thread %s: %w", threadID, errs.ErrNotFound)
	}
	if !scope.IsSuperadmin && !participant(msgs, scope.ActingUserID) {
		return nil, fmt.Errorf("not a participant of thread %s: %w", threadID, errs.ErrForbidden)
	}

	s.auditor.AppendBestEffort(ctx, &audit.Entry{
		OrganizationID: scope.OrganizationID,
		ActorID:        scope.ActingUserID,
		Action:         "thread_viewed",
		ResourceType:   "message_thread",
		ResourceID:     threadID.String(),
	})
	return msgs, nil
}

// ArchiveThread marks every message in the thread archived for the acting
// user only and returns how many rows that newly affected. Re-archiving is
// a no-op, not an error.
func (s *Service) ArchiveThread(ctx context.Context, threadID uuid.UUID) (int, error) {
	scope, err := requireScope(ctx)
	if err != nil {
		return 0, err
	}

	msgs, err := s.repo.ListByThread(ctx, scope.OrganizationID, threadID)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, fmt.Errorf("thread %s: %w", threadID, errs.ErrNotFound)
	}
	if !scope.IsSuperadmin && !participant(msgs, scope.ActingUserID) {
		return 0, fmt.Errorf("not a participant of thread %s: %w", threadID, errs.ErrForbidden)
	}

	affected := 0
	for _, m := range msgs {
		created, err := s.repo.Archive(ctx, m.ID, scope.ActingUserID)
		if err != nil {
			return affected, err
		}
		if created {
			affected++
		}
	}
	return affected, nil
}

// MarkRead transitions the acting user's read state for one message. Only
// the designated recipient may mark; for broadcasts any participant except
// the sender may. The transition is one-directional.
func (s *Service) MarkRead(ctx context.Context, messageID uuid.UUID) error {
	scope, err := requireScope(ctx)
	if err != nil {
		return err
	}

	m, err := s.repo.GetByID(ctx, scope.OrganizationID, messageID)
	if err != nil {
		return err
	}
	switch {
	case m.ToUserID != nil:
		if *m.ToUserID != scope.ActingUserID {
			return fmt.Errorf("only the recipient may mark a message read: %w", errs.ErrForbidden)
		}
	default:
		// Broadcast: anyone but the sender tracks their own read state.
		if m.FromUserID == scope.ActingUserID {
			return fmt.Errorf("senders have no read state of their own: %w", errs.ErrForbidden)
		}
	}
	return s.repo.MarkRead(ctx, messageID, scope.ActingUserID)
}

func (s *Service) requireParticipant(ctx context.Context, scope tenant.Scope, threadID uuid.UUID) error {
	msgs, err := s.repo.ListByThread(ctx, scope.OrganizationID, threadID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return fmt.Errorf("thread %s: %w", threadID, errs.ErrNotFound)
	}
	if !scope.IsSuperadmin && !participant(msgs, scope.ActingUserID) {
		return fmt.Errorf("not a participant of thread %s: %w", threadID, errs.ErrForbidden)
	}
	return nil
}

func participant(msgs []*Message, userID uuid.UUID) bool {
	for _, m := range msgs {
		if m.FromUserID == userID {
			return true
		}
		if m.ToUserID != nil && *m.ToUserID == userID {
			return true
		}
	}
	return false
}

func newerThan(a, b *Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return strings.Compare(a.ID.String(), b.ID.String()) < 0
}
