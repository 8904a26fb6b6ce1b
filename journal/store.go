// Package journal keeps a post-game record of every order the build queue
// resolved, plus a compressed trace of every command sent to the game.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderRecord is one resolved order.
type OrderRecord struct {
	SessionID string
	UnitType  string
	Kind      string
	List      string
	Reason    string
	Retries   int
	Builder   int
	QueuedAt  int
	RemovedAt int
}

// Outcome counts how orders of one type ended.
type Outcome struct {
	UnitType string
	Reason   string
	Count    int64
	Retries  float64
}

type Session struct {
	ID        string
	Player    int
	MapName   string
	StartedAt time.Time
	Orders    int64
}

// Store is a GORM-backed journal.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// StartSession opens a new session and returns its id.
func (s *Store) StartSession(ctx context.Context, player int, mapName string) (string, error) {
	m := SessionModel{
		ID:        uuid.NewString(),
		Player:    player,
		MapName:   mapName,
		StartedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return m.ID, nil
}

// SaveOrders inserts a batch of records in one transaction.
func (s *Store) SaveOrders(ctx context.Context, recs []OrderRecord) error {
	if len(recs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]OrderModel, len(recs))
	for i, r := range recs {
		rows[i] = OrderModel{
			ID:         uuid.NewString(),
			SessionID:  r.SessionID,
			UnitType:   r.UnitType,
			Kind:       r.Kind,
			List:       r.List,
			Reason:     r.Reason,
			Retries:    r.Retries,
			Builder:    r.Builder,
			QueuedAt:   r.QueuedAt,
			RemovedAt:  r.RemovedAt,
			RecordedAt: now,
		}
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to save %d orders: %w", len(rows), err)
	}
	return nil
}

// Sessions lists the most recent sessions with their order counts.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	var models []SessionModel
	q := s.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	out := make([]Session, len(models))
	for i, m := range models {
		out[i] = Session{ID: m.ID, Player: m.Player, MapName: m.MapName, StartedAt: m.StartedAt}
		if err := s.db.WithContext(ctx).Model(&OrderModel{}).
			Where("session_id = ?", m.ID).
			Count(&out[i].Orders).Error; err != nil {
			return nil, fmt.Errorf("failed to count orders: %w", err)
		}
	}
	return out, nil
}

// LatestSession returns the id of the most recent session.
func (s *Store) LatestSession(ctx context.Context) (string, error) {
	var m SessionModel
	if err := s.db.WithContext(ctx).Order("started_at DESC").First(&m).Error; err != nil {
		return "", fmt.Errorf("failed to find latest session: %w", err)
	}
	return m.ID, nil
}

// Outcomes groups a session's orders by unit type and reason.
func (s *Store) Outcomes(ctx context.Context, sessionID string) ([]Outcome, error) {
	var out []Outcome
	err := s.db.WithContext(ctx).Model(&OrderModel{}).
		Select("unit_type, reason, COUNT(*) AS count, AVG(retries) AS retries").
		Where("session_id = ?", sessionID).
		Group("unit_type, reason").
		Order("unit_type, reason").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate outcomes: %w", err)
	}
	return out, nil
}
