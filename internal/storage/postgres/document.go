package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"

	"github.com/VitaminP8/commentree/internal/document"
	"github.com/VitaminP8/commentree/models"
)

type DocumentPostgresStorage struct{}

func NewDocumentPostgresStorage() *DocumentPostgresStorage {
	return &DocumentPostgresStorage{}
}

func (s *DocumentPostgresStorage) Get(ctx context.Context, path string) (*document.Snapshot, error) {
	var row models.Document
	err := DB.Where("path = ?", path).First(&row).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, fmt.Errorf("%s: %w", path, document.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get document %s: %w", path, err)
	}
	return toSnapshot(&row)
}

func (s *DocumentPostgresStorage) Set(ctx context.Context, path string, data document.Fields) error {
	now := time.Now().UTC()
	raw, _, err := document.Encode(data, now)
	if err != nil {
		return err
	}

	return DB.Transaction(func(tx *gorm.DB) error {
		var row models.Document
		err := lockRow(tx).Where("path = ?", path).First(&row).Error
		if err != nil && !gorm.IsRecordNotFoundError(err) {
			return fmt.Errorf("could not get document %s: %w", path, err)
		}

		if err == nil {
			err = tx.Model(&row).Updates(map[string]interface{}{"data": string(raw), "updated_at": now}).Error
			if err != nil {
				return fmt.Errorf("could not overwrite document %s: %w", path, err)
			}
			return nil
		}

		collection, _ := document.Split(path)
		err = tx.Create(&models.Document{
			Path:       path,
			Collection: collection,
			Data:       string(raw),
			CreatedAt:  now,
			UpdatedAt:  now,
		}).Error
		if err != nil {
			return fmt.Errorf("could not create document %s: %w", path, err)
		}
		return nil
	})
}

func (s *DocumentPostgresStorage) Add(ctx context.Context, collection string, data document.Fields) (string, error) {
	now := time.Now().UTC()
	raw, _, err := document.Encode(data, now)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	err = DB.Create(&models.Document{
		Path:       document.Join(collection, id),
		Collection: collection,
		Data:       string(raw),
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error
	if err != nil {
		return "", fmt.Errorf("could not add document to %s: %w", collection, err)
	}
	return id, nil
}

func (s *DocumentPostgresStorage) Update(ctx context.Context, path string, updates document.Fields) error {
	return DB.Transaction(func(tx *gorm.DB) error {
		var row models.Document
		err := lockRow(tx).Where("path = ?", path).First(&row).Error
		if err != nil {
			if gorm.IsRecordNotFoundError(err) {
				return fmt.Errorf("%s: %w", path, document.ErrNotFound)
			}
			return fmt.Errorf("could not get document %s: %w", path, err)
		}

		current, err := document.Decode([]byte(row.Data))
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		merged, err := document.Apply(current, updates, now)
		if err != nil {
			return err
		}
		raw, _, err := document.Encode(merged, now)
		if err != nil {
			return err
		}

		err = tx.Model(&row).Updates(map[string]interface{}{"data": string(raw), "updated_at": now}).Error
		if err != nil {
			return fmt.Errorf("could not update document %s: %w", path, err)
		}
		return nil
	})
}

func (s *DocumentPostgresStorage) Delete(ctx context.Context, path string) error {
	res := DB.Where("path = ?", path).Delete(&models.Document{})
	if res.Error != nil {
		return fmt.Errorf("could not delete document %s: %w", path, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", path, document.ErrNotFound)
	}
	return nil
}

func (s *DocumentPostgresStorage) List(ctx context.Context, collection string) ([]*document.Snapshot, error) {
	var rows []models.Document
	err := DB.Where("collection = ?", collection).Order("created_at asc").Order("id asc").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("could not list %s: %w", collection, err)
	}

	out := make([]*document.Snapshot, 0, len(rows))
	for i := range rows {
		snap, err := toSnapshot(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *DocumentPostgresStorage) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := DB.Model(&models.Document{}).Where("collection = ?", collection).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("could not count %s: %w", collection, err)
	}
	return n, nil
}

// lockRow блокирует строку до конца транзакции (в sqlite не поддерживается)
func lockRow(tx *gorm.DB) *gorm.DB {
	if tx.Dialect().GetName() == "postgres" {
		return tx.Set("gorm:query_option", "FOR UPDATE")
	}
	return tx
}

func toSnapshot(row *models.Document) (*document.Snapshot, error) {
	data, err := document.Decode([]byte(row.Data))
	if err != nil {
		return nil, err
	}
	_, id := document.Split(row.Path)
	return &document.Snapshot{
		ID:         id,
		Path:       row.Path,
		Data:       data,
		CreateTime: row.CreatedAt,
		UpdateTime: row.UpdatedAt,
	}, nil
}
