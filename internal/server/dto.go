package server

import (
	"encoding/json"

	"campustasks/internal/domain"
	"campustasks/internal/engine"
	"campustasks/internal/stats"
	"campustasks/internal/views"
)

// Request payloads

type SignupRequest struct {
	Name     string `json:"name" example:"Priya Sharma"`
	Email    string `json:"email" example:"priya@campus.edu"`
	Password string `json:"password" example:"secret1"`
	Campus   string `json:"campus,omitempty" example:"Woxsen University"`
	Role     string `json:"role,omitempty" enum:"earn,post,both"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateBioRequest struct {
	Bio string `json:"bio" maxLength:"2000"`
}

type AttachmentDTO struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type CreateTaskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty" enum:"Coding / Assignments,Notes / Study Material,Concept Explanation,Lab Work,Random / Other"`
	Price       float64         `json:"price" example:"150"`
	Deadline    string          `json:"deadline" example:"Today, 11:00 PM"`
	Attachments []AttachmentDTO `json:"attachments,omitempty"`
	Links       []string        `json:"links,omitempty"`
}

// Response payloads

type UserResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Campus          string `json:"campus"`
	Role            string `json:"role" enum:"earn,post,both"`
	RoleDescription string `json:"role_description"`
	Bio             string `json:"bio"`
	CreatedAt       string `json:"created_at"`
}

type AuthResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

type TaskResponse struct {
	ID             int64           `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	Price          float64         `json:"price"`
	PriceBracket   string          `json:"price_bracket" enum:"<100,100-150,>150"`
	Deadline       string          `json:"deadline"`
	Attachments    []AttachmentDTO `json:"attachments"`
	Links          []string        `json:"links"`
	CreatedBy      string          `json:"created_by"`
	CreatedByName  string          `json:"created_by_name,omitempty"`
	AcceptedBy     *string         `json:"accepted_by"`
	AcceptedByName string          `json:"accepted_by_name,omitempty"`
	Status         string          `json:"status" enum:"open,accepted,completed"`
	Version        int             `json:"version"`
	CreatedAt      string          `json:"created_at,omitempty"`
	UpdatedAt      string          `json:"updated_at,omitempty"`
	AcceptedAt     *string         `json:"accepted_at,omitempty"`
	CompletedAt    *string         `json:"completed_at,omitempty"`
}

type TaskListResponse struct {
	Items []TaskResponse `json:"items"`
}

type CommandResponse struct {
	Outcome string        `json:"outcome" enum:"applied,not_found,self_accept,already_accepted,already_completed,not_accepted"`
	Task    *TaskResponse `json:"task,omitempty"`
}

type HistoryResponse struct {
	Posted    []TaskResponse `json:"posted"`
	Completed []TaskResponse `json:"completed"`
	Timeline  []TaskResponse `json:"timeline"`
}

type StatsResponse struct {
	Posted          int     `json:"posted"`
	AcceptedByYou   int     `json:"accepted_by_you"`
	Completed       int     `json:"completed"`
	CompletedByYou  int     `json:"completed_by_you"`
	Earnings        float64 `json:"earnings"`
	Spent           float64 `json:"spent"`
	PendingOutgoing int     `json:"pending_outgoing"`
	PendingIncoming int     `json:"pending_incoming"`
	PendingTotal    int     `json:"pending_total"`
}

type LeaderboardEntryResponse struct {
	Rank      int    `json:"rank"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Completed int    `json:"completed"`
}

type LeaderboardResponse struct {
	Items []LeaderboardEntryResponse `json:"items"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Mappers

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Campus:          u.Campus,
		Role:            string(u.Role),
		RoleDescription: u.Role.Description(),
		Bio:             u.Bio,
		CreatedAt:       u.CreatedAt,
	}
}

// names resolves user ids to display names; unknown ids stay unresolved.
type names map[string]string

func taskResponse(t domain.Task, n names) TaskResponse {
	attachments := make([]AttachmentDTO, 0, len(t.Attachments))
	for _, a := range t.Attachments {
		attachments = append(attachments, AttachmentDTO{Name: a.Name, Type: a.Type})
	}
	links := t.Links
	if links == nil {
		links = []string{}
	}
	resp := TaskResponse{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Category:      string(t.Category),
		Price:         t.Price.InexactFloat64(),
		PriceBracket:  string(views.BracketOf(t.Price)),
		Deadline:      t.Deadline,
		Attachments:   attachments,
		Links:         links,
		CreatedBy:     t.CreatedBy,
		CreatedByName: n[t.CreatedBy],
		AcceptedBy:    t.AcceptedBy,
		Status:        string(t.Status),
		Version:       t.Version,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		AcceptedAt:    t.AcceptedAt,
		CompletedAt:   t.CompletedAt,
	}
	if t.AcceptedBy != nil {
		resp.AcceptedByName = n[*t.AcceptedBy]
	}
	return resp
}

func mapTasks(items []domain.Task, n names) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t, n))
	}
	return res
}

func commandResponse(t domain.Task, outcome engine.Outcome, n names) CommandResponse {
	resp := CommandResponse{Outcome: string(outcome)}
	if outcome != engine.OutcomeNotFound {
		tr := taskResponse(t, n)
		resp.Task = &tr
	}
	return resp
}

func statsResponse(s stats.Summary) StatsResponse {
	return StatsResponse{
		Posted:          s.Posted,
		AcceptedByYou:   s.AcceptedByYou,
		Completed:       s.Completed,
		CompletedByYou:  s.CompletedByYou,
		Earnings:        s.Earnings.InexactFloat64(),
		Spent:           s.Spent.InexactFloat64(),
		PendingOutgoing: s.PendingOutgoing,
		PendingIncoming: s.PendingIncoming,
		PendingTotal:    s.PendingTotal,
	}
}

func leaderboardResponse(entries []stats.Entry) LeaderboardResponse {
	res := LeaderboardResponse{Items: make([]LeaderboardEntryResponse, 0, len(entries))}
	for _, e := range entries {
		res.Items = append(res.Items, LeaderboardEntryResponse{Rank: e.Rank, UserID: e.UserID, Name: e.Name, Completed: e.Completed})
	}
	return res
}

func eventResponse(evt domain.Event) EventResponse {
	resp := EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
	}
	if evt.Payload != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(evt.Payload), &payload); err == nil {
			resp.Payload = payload
		}
	}
	return resp
}
