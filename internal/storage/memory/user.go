package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/VitaminP8/commentree/internal/auth"
	"github.com/VitaminP8/commentree/internal/profile"
	"github.com/VitaminP8/commentree/internal/user"
)

type UserMemoryStorage struct {
	mu         sync.Mutex
	users      map[string]*user.User // id -> пользователь
	usernames  map[string]string     // нормализованный username -> id
	emails     map[string]string     // email -> id
	passwords  map[string]string     // id -> bcrypt hash
	jwtSecret  string
	tokenTTL   time.Duration
	moderators map[string]bool // username -> модератор (задается конфигурацией)
}

func NewUserMemoryStorage(jwtSecret string, tokenTTL time.Duration) *UserMemoryStorage {
	return &UserMemoryStorage{
		users:      make(map[string]*user.User),
		usernames:  make(map[string]string),
		emails:     make(map[string]string),
		passwords:  make(map[string]string),
		jwtSecret:  jwtSecret,
		tokenTTL:   tokenTTL,
		moderators: make(map[string]bool),
	}
}

// WithModerators помечает пользователей как глобальных модераторов
func (s *UserMemoryStorage) WithModerators(usernames ...string) *UserMemoryStorage {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range usernames {
		key := user.NormalizeUsername(name)
		s.moderators[key] = true
		if id, ok := s.usernames[key]; ok {
			s.users[id].IsModerator = true
		}
	}
	return s
}

func (s *UserMemoryStorage) RegisterUser(ctx context.Context, reg user.Registration) (*user.User, error) {
	if !user.ValidUsername(reg.Username) {
		return nil, user.ErrInvalidUsername
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := user.NormalizeUsername(reg.Username)
	if _, exists := s.usernames[key]; exists {
		return nil, fmt.Errorf("user %s: %w", reg.Username, user.ErrExists)
	}
	if _, exists := s.emails[reg.Email]; exists {
		return nil, fmt.Errorf("email %s: %w", reg.Email, user.ErrExists)
	}

	displayName := reg.DisplayName
	if displayName == "" {
		displayName = reg.Username
	}

	u := &user.User{
		ID:          uuid.NewString(),
		Username:    reg.Username,
		Email:       reg.Email,
		DisplayName: displayName,
		IsModerator: s.moderators[key],
	}

	s.users[u.ID] = u
	s.usernames[key] = u.ID
	s.emails[reg.Email] = u.ID
	s.passwords[u.ID] = string(hashedPassword)

	cp := *u
	return &cp, nil
}

func (s *UserMemoryStorage) LoginUser(ctx context.Context, username, password string) (string, error) {
	s.mu.Lock()
	id, exists := s.usernames[user.NormalizeUsername(username)]
	if !exists {
		s.mu.Unlock()
		return "", fmt.Errorf("user %s: %w", username, user.ErrNotFound)
	}
	u := *s.users[id]
	hashedPassword := s.passwords[id]
	s.mu.Unlock()

	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	if err != nil {
		return "", user.ErrInvalidCredentials
	}

	return auth.IssueToken(s.jwtSecret, auth.Viewer{ID: u.ID, Email: u.Email, IsModerator: u.IsModerator}, s.tokenTTL)
}

func (s *UserMemoryStorage) GetUser(ctx context.Context, id string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, user.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *UserMemoryStorage) GetProfile(ctx context.Context, id string) (*profile.Profile, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", profile.ErrNotFound, id)
	}
	return u.Profile(), nil
}

func (s *UserMemoryStorage) FindByUsername(ctx context.Context, username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usernames[user.NormalizeUsername(username)]
	if !ok {
		return "", fmt.Errorf("user %s: %w", username, user.ErrNotFound)
	}
	return id, nil
}

func (s *UserMemoryStorage) UpdateProfile(ctx context.Context, id, displayName, photoURL string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, user.ErrNotFound)
	}
	if displayName != "" {
		u.DisplayName = displayName
	}
	u.PhotoURL = photoURL

	cp := *u
	return &cp, nil
}
