package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenPackage - пакет токенов, доступный для покупки.
type TokenPackage struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	TokenAmount int       `db:"token_amount" json:"tokenAmount"`
	PriceCents  int64     `db:"price_cents" json:"priceCents"`
	Description string    `db:"description" json:"description"`
	IsActive    bool      `db:"is_active" json:"isActive"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// PurchaseStatus - статус покупки токенов.
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
	PurchaseStatusRefunded  PurchaseStatus = "refunded"
)

// TokenPurchase - запись о покупке пакета токенов. Создается внешним
// платежным коллаборатором в статусе pending; завершение покупки зачисляет
// токены на профиль ровно один раз.
type TokenPurchase struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	UserID            uuid.UUID      `db:"user_id" json:"userId"`
	PackageID         *int64         `db:"package_id" json:"packageId,omitempty"`
	TokenAmount       int            `db:"token_amount" json:"tokenAmount"`
	PriceCents        int64          `db:"price_cents" json:"priceCents"`
	Status            PurchaseStatus `db:"status" json:"status"`
	ExternalSessionID string         `db:"external_session_id" json:"externalSessionId,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
	CompletedAt       *time.Time     `db:"completed_at" json:"completedAt,omitempty"`
}
