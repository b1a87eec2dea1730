package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"campustasks/internal/config"
	"campustasks/internal/domain"
	"campustasks/internal/events"
	"campustasks/internal/repo"
)

// Messages shown to the person filling the signup, login or profile forms.
const (
	MsgFieldsRequired     = "All fields are required"
	MsgInvalidName        = "Name must contain only letters and spaces"
	MsgInvalidEmail       = "Invalid email format"
	MsgEmailTaken         = "Email already registered"
	MsgInvalidRole        = "Role must be one of earn, post, both"
	MsgCredentialsMissing = "Email and password are required"
	MsgInvalidCredentials = "Invalid email or password"
)

var (
	nameRe  = regexp.MustCompile(`^[A-Za-z ]+$`)
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidationError indicates input the user has to correct.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// storedUser is the persisted record. Password holds a plain-text password
// written by older clients; it is replaced by a hash on the next login.
type storedUser struct {
	domain.User
	Password string `json:"password,omitempty"`
}

// Service manages accounts and the current session on top of a Store.
type Service struct {
	Store     repo.Store
	Events    events.Writer
	Config    *config.Config
	Logger    *zap.Logger
	Now       func() time.Time
	HashCost  int
	Stateless bool // no session is kept; callers track identity themselves
	mu        *sync.Mutex
}

func New(store repo.Store, ev events.Writer, cfg *config.Config, logger *zap.Logger) Service {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Service{
		Store:    store,
		Events:   ev,
		Config:   cfg,
		Logger:   logger,
		Now:      time.Now,
		HashCost: bcrypt.DefaultCost,
		mu:       &sync.Mutex{},
	}
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) lock() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s Service) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s Service) cfg() *config.Config {
	if s.Config == nil {
		return config.Default()
	}
	return s.Config
}

type SignupInput struct {
	Name     string
	Email    string
	Password string
	Campus   string
	Role     domain.Role
}

// Signup registers a user and makes them the current session.
func (s Service) Signup(ctx context.Context, in SignupInput) (domain.User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" || in.Password == "" {
		return domain.User{}, invalid(MsgFieldsRequired)
	}
	if !nameRe.MatchString(name) {
		return domain.User{}, invalid(MsgInvalidName)
	}
	if !emailRe.MatchString(email) {
		return domain.User{}, invalid(MsgInvalidEmail)
	}
	minLen := s.cfg().Marketplace.PasswordMinLength
	if utf8.RuneCountInString(in.Password) < minLen {
		return domain.User{}, invalid(fmt.Sprintf("Password must be at least %d characters", minLen))
	}
	role := in.Role
	if role == "" {
		role = domain.RoleEarn
	}
	if !role.Valid() {
		return domain.User{}, invalid(MsgInvalidRole)
	}
	campus := strings.TrimSpace(in.Campus)
	if campus == "" {
		campus = s.cfg().Marketplace.DefaultCampus
	}

	defer s.lock()()
	users, err := s.loadUsers(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if findByEmail(users, email) >= 0 {
		return domain.User{}, invalid(MsgEmailTaken)
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return domain.User{}, err
	}
	now := s.now()
	u := domain.User{
		ID:           nextUserID(users, now),
		Name:         name,
		Email:        email,
		Campus:       campus,
		Role:         role,
		Bio:          "",
		CreatedAt:    now.UTC().Format(time.RFC3339),
		PasswordHash: hash,
	}
	users = append(users, storedUser{User: u})
	if err := repo.SaveJSON(ctx, s.Store, repo.KeyUsers, users); err != nil {
		return domain.User{}, err
	}
	if err := s.setSession(ctx, u); err != nil {
		return domain.User{}, err
	}
	if err := s.Events.Append(ctx, events.UserSignup, "user", u.ID, u.ID, events.EventPayload{"role": string(u.Role), "campus": u.Campus}); err != nil {
		s.log().Warn("append event failed", zap.String("type", events.UserSignup), zap.Error(err))
	}
	s.log().Info("user signed up", zap.String("user_id", u.ID))
	return u.Public(), nil
}

// Login checks credentials and makes the user the current session.
func (s Service) Login(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return domain.User{}, invalid(MsgCredentialsMissing)
	}
	defer s.lock()()
	users, err := s.loadUsers(ctx)
	if err != nil {
		return domain.User{}, err
	}
	idx := findByEmail(users, email)
	if idx < 0 {
		return domain.User{}, invalid(MsgInvalidCredentials)
	}
	su := users[idx]
	switch {
	case su.PasswordHash != "":
		if bcrypt.CompareHashAndPassword([]byte(su.PasswordHash), []byte(password)) != nil {
			return domain.User{}, invalid(MsgInvalidCredentials)
		}
	case su.Password != "" && su.Password == password:
		hash, err := s.hash(password)
		if err != nil {
			return domain.User{}, err
		}
		su.PasswordHash = hash
		su.Password = ""
		users[idx] = su
		if err := repo.SaveJSON(ctx, s.Store, repo.KeyUsers, users); err != nil {
			return domain.User{}, err
		}
		s.log().Info("upgraded legacy password", zap.String("user_id", su.ID))
	default:
		return domain.User{}, invalid(MsgInvalidCredentials)
	}
	if err := s.setSession(ctx, su.User); err != nil {
		return domain.User{}, err
	}
	s.log().Info("user logged in", zap.String("user_id", su.ID))
	return su.User.Public(), nil
}

// Logout clears the session.
func (s Service) Logout(ctx context.Context) error {
	defer s.lock()()
	return s.Store.Delete(ctx, repo.KeySession)
}

// Current returns the session user, or nil when nobody is logged in.
func (s Service) Current(ctx context.Context) (*domain.User, error) {
	var u domain.User
	ok, err := repo.LoadJSON(ctx, s.Store, repo.KeySession, &u)
	if err != nil || !ok {
		return nil, err
	}
	u = s.normalizeUser(u).Public()
	return &u, nil
}

// UpdateBio overwrites a user's bio. It reports false for unknown ids, which change nothing.
func (s Service) UpdateBio(ctx context.Context, userID, bio string) (domain.User, bool, error) {
	maxLen := s.cfg().Marketplace.BioMaxLength
	if utf8.RuneCountInString(bio) > maxLen {
		return domain.User{}, false, invalid(fmt.Sprintf("Bio must be at most %d characters", maxLen))
	}
	defer s.lock()()
	users, err := s.loadUsers(ctx)
	if err != nil {
		return domain.User{}, false, err
	}
	idx := findByID(users, userID)
	if idx < 0 {
		s.log().Debug("bio update ignored, unknown user", zap.String("user_id", userID))
		return domain.User{}, false, nil
	}
	users[idx].Bio = bio
	if err := repo.SaveJSON(ctx, s.Store, repo.KeyUsers, users); err != nil {
		return domain.User{}, false, err
	}
	cur, err := s.Current(ctx)
	if err != nil {
		return domain.User{}, false, err
	}
	if cur != nil && cur.ID == userID {
		if err := s.setSession(ctx, users[idx].User); err != nil {
			return domain.User{}, false, err
		}
	}
	if err := s.Events.Append(ctx, events.UserBioUpdated, "user", userID, userID, events.EventPayload{"length": utf8.RuneCountInString(bio)}); err != nil {
		s.log().Warn("append event failed", zap.String("type", events.UserBioUpdated), zap.Error(err))
	}
	return users[idx].User.Public(), true, nil
}

// Get returns a user by id without credentials.
func (s Service) Get(ctx context.Context, id string) (domain.User, error) {
	users, err := s.List(ctx)
	if err != nil {
		return domain.User{}, err
	}
	for _, u := range users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, repo.ErrNotFound
}

// List returns every registered user in signup order, without credentials.
func (s Service) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(users))
	for _, u := range users {
		res = append(res, u.User.Public())
	}
	return res, nil
}

// SeedUser is a demo account created by Seed.
type SeedUser struct {
	User     domain.User
	Password string
}

// Seed registers accounts whose email is not taken yet. The session is left alone.
func (s Service) Seed(ctx context.Context, seeds []SeedUser) (int, error) {
	defer s.lock()()
	users, err := s.loadUsers(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	ts := s.now().UTC().Format(time.RFC3339)
	for _, seed := range seeds {
		u := seed.User
		u.Email = strings.ToLower(strings.TrimSpace(u.Email))
		if u.ID == "" || u.Email == "" {
			return 0, errors.New("seed user requires id and email")
		}
		if findByEmail(users, u.Email) >= 0 || findByID(users, u.ID) >= 0 {
			continue
		}
		hash, err := s.hash(seed.Password)
		if err != nil {
			return 0, err
		}
		u.PasswordHash = hash
		if u.CreatedAt == "" {
			u.CreatedAt = ts
		}
		users = append(users, storedUser{User: s.normalizeUser(u)})
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := repo.SaveJSON(ctx, s.Store, repo.KeyUsers, users); err != nil {
		return 0, err
	}
	return added, nil
}

func (s Service) hash(password string) (string, error) {
	cost := s.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func (s Service) setSession(ctx context.Context, u domain.User) error {
	if s.Stateless {
		return nil
	}
	return repo.SaveJSON(ctx, s.Store, repo.KeySession, u.Public())
}

func (s Service) loadUsers(ctx context.Context) ([]storedUser, error) {
	var users []storedUser
	if _, err := repo.LoadJSON(ctx, s.Store, repo.KeyUsers, &users); err != nil {
		return nil, err
	}
	for i := range users {
		users[i].User = s.normalizeUser(users[i].User)
	}
	return users, nil
}

// normalizeUser fills fields that older records lack.
func (s Service) normalizeUser(u domain.User) domain.User {
	if u.Role == "" {
		u.Role = domain.RoleEarn
	}
	if u.Campus == "" {
		u.Campus = s.cfg().Marketplace.DefaultCampus
	}
	return u
}

func findByEmail(users []storedUser, email string) int {
	for i, u := range users {
		if strings.EqualFold(u.Email, email) {
			return i
		}
	}
	return -1
}

func findByID(users []storedUser, id string) int {
	for i, u := range users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func nextUserID(users []storedUser, now time.Time) string {
	id := now.UnixMilli()
	for findByID(users, strconv.FormatInt(id, 10)) >= 0 {
		id++
	}
	return strconv.FormatInt(id, 10)
}
