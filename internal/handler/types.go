package handler

import (
	"time"

	"comic-server/internal/models"
)

// submitResponse - ответ на принятую отправку скрипта.
type submitResponse struct {
	SubmissionID string `json:"submissionId"`
	LineCount    int    `json:"lineCount"`
}

// galleryResponse - страница галереи сгенерированных панелей.
type galleryResponse struct {
	Panels []models.GeneratedPanel `json:"panels"`
	Total  int64                   `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

// dashboardResponse - сводка профиля пользователя с последними панелями.
type dashboardResponse struct {
	UserID               string                  `json:"userId"`
	TokenBalance         int                     `json:"tokenBalance"`
	TotalTokensPurchased int                     `json:"totalTokensPurchased"`
	TotalImagesGenerated int                     `json:"totalImagesGenerated"`
	TotalPanels          int64                   `json:"totalPanels"`
	MemberSince          time.Time               `json:"memberSince"`
	RecentPanels         []models.GeneratedPanel `json:"recentPanels"`
}

// createPurchaseRequest - запрос платежного коллаборатора на создание покупки.
type createPurchaseRequest struct {
	UserID            string `json:"userId" binding:"required,uuid"`
	PackageID         int64  `json:"packageId" binding:"required"`
	ExternalSessionID string `json:"externalSessionId"`
}
