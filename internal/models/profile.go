package models

import (
	"time"

	"github.com/google/uuid"
)

// UserProfile - профиль пользователя с балансом токенов. Сам пользователь
// (логин, пароль, сессии) принадлежит внешнему auth-сервису; здесь хранится
// только учет токенов и счетчики генерации.
//
// Инвариант: баланс никогда не опускается ниже нуля. Списание - это условный
// декремент на уровне SQL, а не read-modify-write в памяти приложения.
type UserProfile struct {
	UserID               uuid.UUID `db:"user_id" json:"userId"`
	TokenBalance         int       `db:"token_balance" json:"tokenBalance"`
	TotalTokensPurchased int       `db:"total_tokens_purchased" json:"totalTokensPurchased"`
	TotalImagesGenerated int       `db:"total_images_generated" json:"totalImagesGenerated"`
	CreatedAt            time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time `db:"updated_at" json:"updatedAt"`
}
