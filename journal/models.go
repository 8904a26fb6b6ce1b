package journal

import "time"

// SessionModel represents the sessions table: one row per game.
type SessionModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Player    int       `gorm:"column:player;not null"`
	MapName   string    `gorm:"column:map_name"`
	StartedAt time.Time `gorm:"column:started_at;not null"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

// OrderModel represents the orders table: one row per order that left the
// build queue.
type OrderModel struct {
	ID         string        `gorm:"column:id;primaryKey"`
	SessionID  string        `gorm:"column:session_id;not null;index"`
	Session    *SessionModel `gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	UnitType   string        `gorm:"column:unit_type;not null"`
	Kind       string        `gorm:"column:kind;not null"`
	List       string        `gorm:"column:list"`
	Reason     string        `gorm:"column:reason;not null;index"`
	Retries    int           `gorm:"column:retries"`
	Builder    int           `gorm:"column:builder"`
	QueuedAt   int           `gorm:"column:queued_frame"`
	RemovedAt  int           `gorm:"column:removed_frame"`
	RecordedAt time.Time     `gorm:"column:recorded_at;not null"`
}

func (OrderModel) TableName() string {
	return "orders"
}
