package models

import (
	"time"

	"github.com/jinzhu/gorm"
)

type User struct {
	gorm.Model
	Username    string `gorm:"unique"`
	Email       string `gorm:"unique"`
	Password    string
	DisplayName string
	PhotoURL    string
	IsModerator bool
}

// Document - строка документного хранилища: путь документа, его коллекция и JSON-тело.
type Document struct {
	ID         uint      `gorm:"primary_key"`
	Path       string    `gorm:"type:varchar(1024);unique_index"`
	Collection string    `gorm:"type:varchar(1024);index"`
	Data       string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}
