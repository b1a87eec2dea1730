// Package views projects the task collection into the lists a user navigates:
// the marketplace, the tasks they accepted and their history. Every function
// is pure and leaves its input untouched.
package views

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"campustasks/internal/domain"
)

// Scope selects which tasks the marketplace shows.
type Scope string

const (
	ScopeOpen   Scope = "open"
	ScopePosted Scope = "posted"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeOpen:
		return ScopeOpen, nil
	case ScopePosted:
		return ScopePosted, nil
	}
	return "", fmt.Errorf("unknown scope %q (want open or posted)", s)
}

// PriceBracket is a price filter. Brackets other than All partition the positive prices.
type PriceBracket string

const (
	PriceAll    PriceBracket = "All"
	PriceUnder  PriceBracket = "<100"
	PriceMiddle PriceBracket = "100-150"
	PriceOver   PriceBracket = ">150"
)

var (
	hundred        = decimal.NewFromInt(100)
	hundredFifty   = decimal.NewFromInt(150)
	bracketAliases = map[string]PriceBracket{
		"":        PriceAll,
		"all":     PriceAll,
		"<100":    PriceUnder,
		"under":   PriceUnder,
		"100-150": PriceMiddle,
		"middle":  PriceMiddle,
		">150":    PriceOver,
		"over":    PriceOver,
	}
)

// Brackets lists the non-All brackets in ascending price order.
func Brackets() []PriceBracket {
	return []PriceBracket{PriceUnder, PriceMiddle, PriceOver}
}

func ParsePriceBracket(s string) (PriceBracket, error) {
	if b, ok := bracketAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return b, nil
	}
	return "", fmt.Errorf("unknown price bracket %q (want All, <100, 100-150 or >150)", s)
}

// Contains reports whether price falls in the bracket.
func (b PriceBracket) Contains(price decimal.Decimal) bool {
	switch b {
	case PriceAll:
		return true
	case PriceUnder:
		return price.LessThan(hundred)
	case PriceMiddle:
		return price.GreaterThanOrEqual(hundred) && price.LessThanOrEqual(hundredFifty)
	case PriceOver:
		return price.GreaterThan(hundredFifty)
	}
	return false
}

// BracketOf returns the single bracket other than All containing price.
func BracketOf(price decimal.Decimal) PriceBracket {
	switch {
	case price.LessThan(hundred):
		return PriceUnder
	case price.LessThanOrEqual(hundredFifty):
		return PriceMiddle
	default:
		return PriceOver
	}
}

// ParseCategory accepts a category label, case-insensitively, or All.
func ParseCategory(s string) (domain.Category, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, string(domain.CategoryAll)) {
		return domain.CategoryAll, nil
	}
	for _, c := range domain.Categories() {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

type MarketFilter struct {
	Scope    Scope
	Category domain.Category
	Price    PriceBracket
}

func (f MarketFilter) withDefaults() MarketFilter {
	if f.Scope == "" {
		f.Scope = ScopeOpen
	}
	if f.Category == "" {
		f.Category = domain.CategoryAll
	}
	if f.Price == "" {
		f.Price = PriceAll
	}
	return f
}

// Marketplace filters tasks for the browse page, keeping collection order.
func Marketplace(tasks []domain.Task, userID string, f MarketFilter) []domain.Task {
	f = f.withDefaults()
	res := []domain.Task{}
	for _, t := range tasks {
		switch f.Scope {
		case ScopePosted:
			if t.CreatedBy != userID {
				continue
			}
		default:
			if t.Status != domain.StatusOpen {
				continue
			}
		}
		if f.Category != domain.CategoryAll && t.Category != f.Category {
			continue
		}
		if !f.Price.Contains(t.Price) {
			continue
		}
		res = append(res, t)
	}
	return res
}

// MyAccepted lists tasks the user accepted and has not completed yet.
func MyAccepted(tasks []domain.Task, userID string) []domain.Task {
	res := []domain.Task{}
	for _, t := range tasks {
		if t.Status == domain.StatusAccepted && t.IsAcceptedBy(userID) {
			res = append(res, t)
		}
	}
	return res
}

type HistoryFilter struct {
	CompletedOnly bool
}

// History holds a user's posted tasks and the tasks they completed, newest first.
type History struct {
	Posted    []domain.Task `json:"posted"`
	Completed []domain.Task `json:"completed"`
}

func BuildHistory(tasks []domain.Task, userID string, f HistoryFilter) History {
	h := History{Posted: []domain.Task{}, Completed: []domain.Task{}}
	for _, t := range tasks {
		if f.CompletedOnly && t.Status != domain.StatusCompleted {
			continue
		}
		if t.CreatedBy == userID {
			h.Posted = append(h.Posted, t)
		}
		if t.Status == domain.StatusCompleted && t.IsAcceptedBy(userID) {
			h.Completed = append(h.Completed, t)
		}
	}
	sortByIDDesc(h.Posted)
	sortByIDDesc(h.Completed)
	return h
}

// Timeline merges both lists without duplicates, newest first.
func (h History) Timeline() []domain.Task {
	seen := make(map[int64]bool, len(h.Posted)+len(h.Completed))
	res := make([]domain.Task, 0, len(h.Posted)+len(h.Completed))
	for _, list := range [][]domain.Task{h.Posted, h.Completed} {
		for _, t := range list {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			res = append(res, t)
		}
	}
	sortByIDDesc(res)
	return res
}

func sortByIDDesc(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].ID > tasks[j].ID })
}
