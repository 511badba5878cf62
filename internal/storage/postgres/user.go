package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jinzhu/gorm"
	"golang.org/x/crypto/bcrypt"

	"github.com/VitaminP8/commentree/internal/auth"
	"github.com/VitaminP8/commentree/internal/profile"
	"github.com/VitaminP8/commentree/internal/user"
	"github.com/VitaminP8/commentree/models"
)

type UserPostgresStorage struct {
	jwtSecret  string
	tokenTTL   time.Duration
	moderators map[string]bool
}

func NewUserPostgresStorage(jwtSecret string, tokenTTL time.Duration) *UserPostgresStorage {
	return &UserPostgresStorage{
		jwtSecret:  jwtSecret,
		tokenTTL:   tokenTTL,
		moderators: make(map[string]bool),
	}
}

// WithModerators - пользователи с этими именами регистрируются модераторами
func (s *UserPostgresStorage) WithModerators(usernames ...string) *UserPostgresStorage {
	for _, name := range usernames {
		s.moderators[user.NormalizeUsername(name)] = true
	}
	return s
}

func (s *UserPostgresStorage) RegisterUser(ctx context.Context, reg user.Registration) (*user.User, error) {
	if !user.ValidUsername(reg.Username) {
		return nil, user.ErrInvalidUsername
	}

	// проверка - существует ли такой пользователь
	var existUser models.User
	err := DB.Where("LOWER(username) = ? OR email = ?", user.NormalizeUsername(reg.Username), reg.Email).First(&existUser).Error
	if err == nil {
		return nil, fmt.Errorf("user %s: %w", reg.Username, user.ErrExists)
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	displayName := reg.DisplayName
	if displayName == "" {
		displayName = reg.Username
	}

	row := &models.User{
		Username:    reg.Username,
		Email:       reg.Email,
		Password:    string(hashedPassword),
		DisplayName: displayName,
		IsModerator: s.moderators[user.NormalizeUsername(reg.Username)],
	}

	err = DB.Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return toUser(row), nil
}

func (s *UserPostgresStorage) LoginUser(ctx context.Context, username, password string) (string, error) {
	// проверка - существует ли такой пользователь
	var row models.User
	err := DB.Where("LOWER(username) = ?", user.NormalizeUsername(username)).First(&row).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return "", fmt.Errorf("user %s: %w", username, user.ErrNotFound)
		}
		return "", fmt.Errorf("failed to get user: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(row.Password), []byte(password))
	if err != nil {
		return "", user.ErrInvalidCredentials
	}

	u := toUser(&row)
	return auth.IssueToken(s.jwtSecret, auth.Viewer{ID: u.ID, Email: u.Email, IsModerator: u.IsModerator}, s.tokenTTL)
}

func (s *UserPostgresStorage) GetUser(ctx context.Context, id string) (*user.User, error) {
	row, err := findUser(id)
	if err != nil {
		return nil, err
	}
	return toUser(row), nil
}

func (s *UserPostgresStorage) GetProfile(ctx context.Context, id string) (*profile.Profile, error) {
	row, err := findUser(id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", profile.ErrNotFound, id)
		}
		return nil, err
	}
	return toUser(row).Profile(), nil
}

func (s *UserPostgresStorage) FindByUsername(ctx context.Context, username string) (string, error) {
	var row models.User
	err := DB.Select("id").Where("LOWER(username) = ?", user.NormalizeUsername(username)).First(&row).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return "", fmt.Errorf("user %s: %w", username, user.ErrNotFound)
		}
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	return fmt.Sprint(row.ID), nil
}

func (s *UserPostgresStorage) UpdateProfile(ctx context.Context, id, displayName, photoURL string) (*user.User, error) {
	row, err := findUser(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"photo_url": photoURL}
	if displayName != "" {
		updates["display_name"] = displayName
	}
	err = DB.Model(row).Updates(updates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return s.GetUser(ctx, id)
}

func findUser(id string) (*models.User, error) {
	numericID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, user.ErrNotFound)
	}

	var row models.User
	err = DB.First(&row, uint(numericID)).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, fmt.Errorf("user %s: %w", id, user.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &row, nil
}

func toUser(row *models.User) *user.User {
	return &user.User{
		ID:          fmt.Sprint(row.ID),
		Username:    row.Username,
		Email:       row.Email,
		DisplayName: row.DisplayName,
		PhotoURL:    row.PhotoURL,
		IsModerator: row.IsModerator,
	}
}
