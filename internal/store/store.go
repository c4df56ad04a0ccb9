// store/store.go
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sentrylabs/facewatch/internal/event"
)

// ErrNotFound is returned when a lookup matches no stored row.
var ErrNotFound = errors.New("store: not found")

// EventStore defines the interface for detection persistence.
type EventStore interface {
	// Event operations
	SaveEvent(ctx context.Context, rec *event.Record) error
	GetEvent(ctx context.Context, id string) (*event.Record, error)
	QueryEvents(ctx context.Context, query EventQuery) ([]*event.Record, error)

	// Gallery user operations
	SaveUser(ctx context.Context, user *User) error
	ListUsers(ctx context.Context) ([]*User, error)

	// Maintenance
	HealthCheck(ctx context.Context) error
	Close() error
}

// EventQuery narrows QueryEvents. Zero values mean no filter.
type EventQuery struct {
	Kind  event.Kind
	Since time.Time
	Limit int
}

// User is a gallery identity together with the reference photos that
// train it. Photos are always held as object-store URLs; local photos
// are uploaded at registration time so that every stored reference has
// exactly one representation.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	PhotoURLs []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName assembles the label used for gallery matching and shown
// on recognized faces.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return "User_" + u.ID
	}
}
