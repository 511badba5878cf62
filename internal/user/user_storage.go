package user

import (
	"context"
	"errors"
	"strings"

	"github.com/VitaminP8/commentree/internal/profile"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrExists             = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid password or username")
	ErrInvalidUsername    = errors.New("username may contain only letters, digits, '_' and '.'")
)

type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
	IsModerator bool   `json:"isModerator"`
}

func (u *User) Profile() *profile.Profile {
	return &profile.Profile{
		AccountID:   u.ID,
		DisplayName: u.DisplayName,
		Username:    u.Username,
		PhotoURL:    u.PhotoURL,
	}
}

type Registration struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// UserStorage - учетные записи: регистрация, вход и то, что нужно ядру обсуждений
// (профили авторов и поиск аккаунта по @handle).
type UserStorage interface {
	RegisterUser(ctx context.Context, reg Registration) (*User, error)
	LoginUser(ctx context.Context, username, password string) (string, error) // JWT
	GetUser(ctx context.Context, id string) (*User, error)
	GetProfile(ctx context.Context, id string) (*profile.Profile, error)
	FindByUsername(ctx context.Context, username string) (string, error)
	UpdateProfile(ctx context.Context, id, displayName, photoURL string) (*User, error)
}

// NormalizeUsername приводит handle к виду, по которому ищутся упоминания
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidUsername - та же грамматика, что у @упоминаний: сегменты из букв,
// цифр и "_", разделенные одиночными точками
func ValidUsername(username string) bool {
	if username == "" {
		return false
	}
	for _, segment := range strings.Split(username, ".") {
		if segment == "" {
			return false
		}
		for _, r := range segment {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			default:
				return false
			}
		}
	}
	return true
}
