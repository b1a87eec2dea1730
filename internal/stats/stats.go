package stats

import (
	"sort"

	"github.com/shopspring/decimal"

	"campustasks/internal/domain"
)

// Summary is the dashboard view of one user's activity.
type Summary struct {
	Posted          int             `json:"posted"`
	AcceptedByYou   int             `json:"accepted_by_you"`
	Completed       int             `json:"completed"`
	CompletedByYou  int             `json:"completed_by_you"`
	Earnings        decimal.Decimal `json:"earnings"`
	Spent           decimal.Decimal `json:"spent"`
	PendingOutgoing int             `json:"pending_outgoing"`
	PendingIncoming int             `json:"pending_incoming"`
	PendingTotal    int             `json:"pending_total"`
}

// ForUser computes the dashboard counters for userID.
//
// Completed counts tasks the user took part in on either side, CompletedByYou
// only those they did as acceptor. Earnings and Spent sum completed prices as
// acceptor and as author.
func ForUser(tasks []domain.Task, userID string) Summary {
	s := Summary{Earnings: decimal.Zero, Spent: decimal.Zero}
	for _, t := range tasks {
		mine := t.CreatedBy == userID
		took := t.IsAcceptedBy(userID)
		if mine {
			s.Posted++
		}
		if took {
			s.AcceptedByYou++
		}
		switch t.Status {
		case domain.StatusOpen:
			if mine {
				s.PendingOutgoing++
			}
		case domain.StatusAccepted:
			if took {
				s.PendingIncoming++
			}
		case domain.StatusCompleted:
			if mine || took {
				s.Completed++
			}
			if took {
				s.CompletedByYou++
				s.Earnings = s.Earnings.Add(t.Price)
			}
			if mine {
				s.Spent = s.Spent.Add(t.Price)
			}
		}
	}
	s.PendingTotal = s.PendingOutgoing + s.PendingIncoming
	return s
}

type Contender struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Completed int    `json:"completed"`
}

type Entry struct {
	Rank int `json:"rank"`
	Contender
}

// CompletedCounts pairs every user, in list order, with the tasks they completed as acceptor.
func CompletedCounts(tasks []domain.Task, users []domain.User) []Contender {
	counts := map[string]int{}
	for _, t := range tasks {
		if t.Status == domain.StatusCompleted && t.AcceptedBy != nil {
			counts[*t.AcceptedBy]++
		}
	}
	res := make([]Contender, 0, len(users))
	for _, u := range users {
		res = append(res, Contender{UserID: u.ID, Name: u.Name, Completed: counts[u.ID]})
	}
	return res
}

// Leaderboard ranks contenders by completed count. Ties keep input order.
func Leaderboard(contenders []Contender) []Entry {
	sorted := make([]Contender, len(contenders))
	copy(sorted, contenders)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Completed > sorted[j].Completed })
	res := make([]Entry, len(sorted))
	for i, c := range sorted {
		res[i] = Entry{Rank: i + 1, Contender: c}
	}
	return res
}
