package app

import (
	"context"

	"github.com/shopspring/decimal"

	"campustasks/internal/domain"
	"campustasks/internal/engine/auth"
)

// DemoPassword is the password of every demo account.
const DemoPassword = "campus123"

type demoUser struct {
	id, name, email string
	role            domain.Role
}

var demoUsers = []demoUser{
	{"demo-alex", "Alex Kumar", "alex.kumar@demo.campus", domain.RoleBoth},
	{"demo-priya", "Priya Sharma", "priya.sharma@demo.campus", domain.RoleEarn},
	{"demo-rahul", "Rahul Singh", "rahul.singh@demo.campus", domain.RolePost},
	{"demo-sam", "Sam Wilson", "sam.wilson@demo.campus", domain.RolePost},
	{"demo-maya", "Maya Patel", "maya.patel@demo.campus", domain.RolePost},
	{"demo-neha", "Neha Verma", "neha.verma@demo.campus", domain.RoleBoth},
}

type demoTask struct {
	id          int64
	title       string
	description string
	category    domain.Category
	price       int64
	deadline    string
	createdBy   string
	acceptedBy  string
	status      domain.Status
}

var demoTasks = []demoTask{
	{1, "Debug Python assignment", "My code keeps throwing an error in a for loop. Need someone to help me fix it and explain.",
		domain.CategoryCoding, 150, "Today, 11:00 PM", "demo-alex", "", domain.StatusOpen},
	{2, "Share last week's class notes", "Missed 2 classes of Engineering Chemistry. Need clear handwritten notes or scanned PDF.",
		domain.CategoryNotes, 80, "Tomorrow, 9:00 AM", "demo-priya", "", domain.StatusOpen},
	{3, "Explain linked list concepts", "Quick explanation of linked list basics before quiz. 20-30 min call.",
		domain.CategoryConcept, 120, "Tonight, 10:30 PM", "demo-rahul", "", domain.StatusOpen},
	{4, "Complete lab record formatting", "Need help formatting my Physics lab record according to college guidelines.",
		domain.CategoryLabWork, 100, "Yesterday, 5:00 PM", "demo-sam", "demo-alex", domain.StatusCompleted},
	{5, "Help with calculus problem set", "Stuck on 3 problems from chapter 5. Need step-by-step solutions.",
		domain.CategoryCoding, 200, "Last week", "demo-maya", "demo-priya", domain.StatusCompleted},
	{6, "Type up handwritten notes", "I have handwritten notes that need to be typed into a Word document.",
		domain.CategoryOther, 90, "Tomorrow, 2:00 PM", "demo-neha", "", domain.StatusOpen},
	{7, "Review my essay draft", "Need someone to review my English essay and suggest improvements.",
		domain.CategoryOther, 110, "Today, 8:00 PM", "demo-neha", "", domain.StatusOpen},
}

// DemoTasks returns the demo marketplace, most recent first.
func DemoTasks() []domain.Task {
	res := make([]domain.Task, 0, len(demoTasks))
	for i := len(demoTasks) - 1; i >= 0; i-- {
		d := demoTasks[i]
		t := domain.Task{
			ID:          d.id,
			Title:       d.title,
			Description: d.description,
			Category:    d.category,
			Price:       decimal.NewFromInt(d.price),
			Deadline:    d.deadline,
			CreatedBy:   d.createdBy,
			Status:      d.status,
		}
		if d.acceptedBy != "" {
			a := d.acceptedBy
			t.AcceptedBy = &a
		}
		res = append(res, t)
	}
	return res
}

type SeedResult struct {
	Users int `json:"users"`
	Tasks int `json:"tasks"`
}

// SeedDemo adds the demo accounts and, into an empty marketplace, the demo tasks.
func (a *App) SeedDemo(ctx context.Context) (SeedResult, error) {
	seeds := make([]auth.SeedUser, 0, len(demoUsers))
	for _, u := range demoUsers {
		seeds = append(seeds, auth.SeedUser{
			User: domain.User{
				ID:     u.id,
				Name:   u.name,
				Email:  u.email,
				Role:   u.role,
				Campus: a.Config.Marketplace.DefaultCampus,
			},
			Password: DemoPassword,
		})
	}
	users, err := a.Accounts.Seed(ctx, seeds)
	if err != nil {
		return SeedResult{}, err
	}
	tasks, err := a.Engine.SeedDemo(ctx, DemoTasks())
	if err != nil {
		return SeedResult{}, err
	}
	return SeedResult{Users: users, Tasks: tasks}, nil
}
