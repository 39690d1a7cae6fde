package store

import (
	"context"
	"time"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

// Snapshot is the persisted form of a session cache. Derived session state
// (active chat, highlight, loading flags) is not part of it.
type Snapshot struct {
	UserID         string          `json:"userId"`
	SelectedCourse string          `json:"selectedCourse"`
	Users          []domain.User   `json:"users"`
	Chats          []domain.Chat   `json:"chats"`
	Courses        []domain.Course `json:"courses"`
	SavedAt        time.Time       `json:"savedAt,omitzero"`
}

// IsEmpty reports whether the snapshot carries no entities and no user.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || (s.UserID == "" && len(s.Users) == 0 && len(s.Chats) == 0 && len(s.Courses) == 0)
}

// Repository defines the interface for persisting session snapshots.
type Repository interface {
	// Save replaces the stored snapshot with snap in a single transaction.
	Save(ctx context.Context, snap *Snapshot) error

	// Load returns the stored snapshot, or nil if nothing has been saved.
	Load(ctx context.Context) (*Snapshot, error)

	// Clear removes the stored snapshot.
	Clear(ctx context.Context) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
