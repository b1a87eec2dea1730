package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices are stored as JSON numbers so existing blobs keep decoding.
	decimal.MarshalJSONWithoutQuotes = true
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusOpen      Status = "open"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusAccepted, StatusCompleted:
		return true
	}
	return false
}

// Label is the human-readable status used by dashboards.
func (s Status) Label() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusAccepted:
		return "Accepted"
	case StatusCompleted:
		return "Completed"
	}
	return string(s)
}

// Category is one of the fixed marketplace categories.
type Category string

const (
	CategoryCoding  Category = "Coding / Assignments"
	CategoryNotes   Category = "Notes / Study Material"
	CategoryConcept Category = "Concept Explanation"
	CategoryLabWork Category = "Lab Work"
	CategoryOther   Category = "Random / Other"
	CategoryAll     Category = "All"
)

const DefaultCategory = CategoryCoding

// Categories lists the selectable categories in display order.
func Categories() []Category {
	return []Category{CategoryCoding, CategoryNotes, CategoryConcept, CategoryLabWork, CategoryOther}
}

// Valid reports whether c is a selectable category. All is a filter value only.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Role is the preference a user picks at signup.
type Role string

const (
	RoleEarn Role = "earn"
	RolePost Role = "post"
	RoleBoth Role = "both"
)

func (r Role) Valid() bool {
	switch r {
	case RoleEarn, RolePost, RoleBoth:
		return true
	}
	return false
}

// Description mirrors the wording shown on the profile page.
func (r Role) Description() string {
	switch r {
	case RoleEarn:
		return "I want to earn by doing tasks"
	case RolePost:
		return "I mostly want to post tasks"
	case RoleBoth:
		return "I want to do both"
	}
	return string(r)
}

type Attachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Task struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    Category        `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Deadline    string          `json:"deadline"`
	Attachments []Attachment    `json:"attachments"`
	Links       []string        `json:"links"`
	CreatedBy   string          `json:"createdBy"`
	AcceptedBy  *string         `json:"acceptedBy"`
	Status      Status          `json:"status"`
	Version     int             `json:"version"`
	CreatedAt   string          `json:"createdAt,omitempty"`
	UpdatedAt   string          `json:"updatedAt,omitempty"`
	AcceptedAt  *string         `json:"acceptedAt,omitempty"`
	CompletedAt *string         `json:"completedAt,omitempty"`
}

// IsAcceptedBy reports whether userID is the task's acceptor.
func (t Task) IsAcceptedBy(userID string) bool {
	return t.AcceptedBy != nil && *t.AcceptedBy == userID
}

// Acceptor returns the acceptor id or "".
func (t Task) Acceptor() string {
	if t.AcceptedBy == nil {
		return ""
	}
	return *t.AcceptedBy
}

// CheckInvariants verifies the acceptor/status relationship and the no-self-accept rule.
func (t Task) CheckInvariants() error {
	if !t.Status.Valid() {
		return fmt.Errorf("task %d: unknown status %q", t.ID, t.Status)
	}
	hasAcceptor := t.AcceptedBy != nil
	switch t.Status {
	case StatusOpen:
		if hasAcceptor {
			return fmt.Errorf("task %d: open task has acceptor %s", t.ID, *t.AcceptedBy)
		}
	case StatusAccepted, StatusCompleted:
		if !hasAcceptor {
			return fmt.Errorf("task %d: %s task has no acceptor", t.ID, t.Status)
		}
	}
	if hasAcceptor && *t.AcceptedBy == t.CreatedBy {
		return fmt.Errorf("task %d: author %s accepted own task", t.ID, t.CreatedBy)
	}
	return nil
}

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Campus       string `json:"campus"`
	Role         Role   `json:"role"`
	Bio          string `json:"bio"`
	CreatedAt    string `json:"createdAt"`
	PasswordHash string `json:"passwordHash,omitempty"`
}

// Public returns a copy without credentials, the shape stored in the session.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
