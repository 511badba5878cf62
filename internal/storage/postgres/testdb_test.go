package postgres

import (
	"testing"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/require"

	"github.com/VitaminP8/commentree/models"
)

// setupTestDB создает тестовую БД в памяти и выполняет миграции
func setupTestDB(t *testing.T) *gorm.DB {
	// Сохраняем оригинальное соединение (если оно есть)
	oldDB := GetDB()

	// Создаем SQLite в памяти
	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err, "Failed to connect to in-memory SQLite")

	// у каждого соединения sqlite :memory: своя база
	db.DB().SetMaxOpenConns(1)
	// Отключаем логирование запросов для тестов
	db.LogMode(false)

	InitDBWithConnection(db)
	require.NoError(t, Migrate(), "Failed to migrate database schema")

	t.Cleanup(func() { db.Close() })
	return oldDB
}

// teardownTestDB восстанавливает оригинальную базу данных
func teardownTestDB(db *gorm.DB) {
	InitDBWithConnection(db)
}

// createTestUser создает пользователя напрямую через gorm и возвращает его ID
func createTestUser(t *testing.T, username string) uint {
	row := &models.User{
		Username:    username,
		Email:       username + "@example.com",
		Password:    "password123",
		DisplayName: username,
	}

	err := DB.Create(row).Error
	require.NoError(t, err, "Failed to create test user")

	return row.ID
}
