package models

import "github.com/golang-jwt/jwt/v5"

// Claims представляет стандартные поля JWT и пользовательские данные.
// Токены выпускает внешний auth-сервис; здесь они только проверяются.
type Claims struct {
	UserID               string   `json:"user_id"` // UUID пользователя
	Roles                []string `json:"roles"`
	jwt.RegisteredClaims          // Issuer, Subject, ExpiresAt, IssuedAt, ID (JTI)
}
