package services

import (
	"context"
	"sort"
	"sync"

	"curasure-chat/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageStore persists relayed messages and serves history and directory reads.
type MessageStore interface {
	Save(ctx context.Context, m *models.StoredMessage) error
	Direct(ctx context.Context, userA, userB string, limit int) ([]models.StoredMessage, error)
	Group(ctx context.Context, groupID string, limit int) ([]models.StoredMessage, error)
	// MarkDelivered 把 sender 发给 receiver 的私聊消息标记为已送达
	MarkDelivered(ctx context.Context, senderID, receiverID string) (int64, error)
	Conversations(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	Participants(ctx context.Context, ids []string) ([]models.Participant, error)
	SaveParticipant(ctx context.Context, p *models.Participant) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Save(ctx context.Context, m *models.StoredMessage) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *GormStore) Direct(ctx context.Context, userA, userB string, limit int) ([]models.StoredMessage, error) {
	return s.latest(ctx, models.ConversationID(userA, userB), limit)
}

func (s *GormStore) Group(ctx context.Context, groupID string, limit int) ([]models.StoredMessage, error) {
	return s.latest(ctx, models.GroupConversationID(groupID), limit)
}

// latest 取最近 limit 条，按时间正序返回（最早的在前）
func (s *GormStore) latest(ctx context.Context, conversationID string, limit int) ([]models.StoredMessage, error) {
	var messages []models.StoredMessage
	q := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *GormStore) MarkDelivered(ctx context.Context, senderID, receiverID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.StoredMessage{}).
		Where("sender_id = ? AND receiver_id = ? AND group_id = '' AND is_read = false", senderID, receiverID).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// Conversations 取每个相关会话的最后一条消息
func (s *GormStore) Conversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	db := s.db.WithContext(ctx)
	last := db.Model(&models.StoredMessage{}).
		Select("conversation_id, MAX(created_at) AS last_at").
		Where("sender_id = ? OR receiver_id = ? OR group_id <> ''", userID, userID).
		Group("conversation_id")

	var rows []models.StoredMessage
	err := db.Table("messages AS m").
		Select("m.*").
		Joins("JOIN (?) AS l ON l.conversation_id = m.conversation_id AND l.last_at = m.created_at", last).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return models.Summarize(userID, rows), nil
}

func (s *GormStore) Participants(ctx context.Context, ids []string) ([]models.Participant, error) {
	var out []models.Participant
	if len(ids) == 0 {
		return out, nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

func (s *GormStore) SaveParticipant(ctx context.Context, p *models.Participant) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "avatar_url", "role", "updated_at"}),
	}).Create(p).Error
}

// MemoryStore keeps everything in process; used when no database DSN is configured and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []models.StoredMessage
	people   map[string]models.Participant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{people: make(map[string]models.Participant)}
}

func (s *MemoryStore) Save(_ context.Context, m *models.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *m)
	return nil
}

func (s *MemoryStore) Direct(_ context.Context, userA, userB string, limit int) ([]models.StoredMessage, error) {
	return s.latest(models.ConversationID(userA, userB), limit), nil
}

func (s *MemoryStore) Group(_ context.Context, groupID string, limit int) ([]models.StoredMessage, error) {
	return s.latest(models.GroupConversationID(groupID), limit), nil
}

func (s *MemoryStore) latest(conversationID string, limit int) []models.StoredMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StoredMessage, 0)
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (s *MemoryStore) MarkDelivered(_ context.Context, senderID, receiverID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.SenderID == senderID && m.ReceiverID == receiverID && m.GroupID == "" && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Conversations(_ context.Context, userID string) ([]models.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.Summarize(userID, s.messages), nil
}

func (s *MemoryStore) Participants(_ context.Context, ids []string) ([]models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Participant, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.people[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveParticipant(_ context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.people[p.ID] = *p
	return nil
}
