package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"comic-server/internal/authutils"
	"comic-server/internal/config"
	"comic-server/internal/interfaces"
	"comic-server/internal/models"
	"comic-server/internal/service"
)

// PanelHandler обслуживает HTTP API генерации панелей.
type PanelHandler struct {
	logger             *zap.Logger
	cfg                *config.Config
	dispatch           service.DispatchService
	tracker            service.SubmissionTracker
	panels             interfaces.PanelRepository
	profiles           interfaces.ProfileRepository
	tokens             interfaces.TokenRepository
	verifier           *authutils.JWTVerifier
	interServiceSecret string
}

// NewPanelHandler создает обработчик API.
func NewPanelHandler(
	logger *zap.Logger,
	cfg *config.Config,
	dispatch service.DispatchService,
	tracker service.SubmissionTracker,
	panels interfaces.PanelRepository,
	profiles interfaces.ProfileRepository,
	tokens interfaces.TokenRepository,
	verifier *authutils.JWTVerifier,
) *PanelHandler {
	return &PanelHandler{
		logger:             logger.Named("PanelHandler"),
		cfg:                cfg,
		dispatch:           dispatch,
		tracker:            tracker,
		panels:             panels,
		profiles:           profiles,
		tokens:             tokens,
		verifier:           verifier,
		interServiceSecret: cfg.InterServiceSecret,
	}
}

// RegisterRoutes регистрирует все маршруты API.
func (h *PanelHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.health)

	api := router.Group("/api")
	api.Use(h.AuthMiddleware())
	{
		api.POST("/panels", h.submit)
		api.GET("/panels", h.gallery)
		api.GET("/dashboard", h.dashboard)
		api.GET("/submissions/:submission_id", h.getSubmission)
		api.GET("/tokens/packages", h.listPackages)
	}

	internal := router.Group("/internal/tokens")
	internal.Use(h.InternalAuthMiddleware())
	{
		internal.POST("/purchases", h.createPurchase)
		internal.POST("/purchases/:purchase_id/complete", h.completePurchase)
		internal.GET("/purchases/:purchase_id", h.getPurchase)
	}
}

func (h *PanelHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// currentUserID извлекает UUID пользователя, сохраненный AuthMiddleware.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	raw, ok := c.Get("user_id")
	if !ok {
		return uuid.Nil, false
	}
	idStr, ok := raw.(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// submit принимает multipart-форму со скриптом диалога и изображениями.
// Персонажи передаются парами полей character_name_<i> / character_image_<i>,
// начиная с нуля и без пропусков; фон - файлом background.
func (h *PanelHandler) submit(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		handleServiceError(c, models.ErrTokenInvalid)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code:    models.ErrCodeBadRequest,
			Message: fmt.Sprintf("invalid multipart form: %v", err),
		})
		return
	}

	req := service.SubmitRequest{
		UserID:   userID,
		Context:  c.PostForm("context"),
		Dialogue: c.PostForm("dialogue"),
	}

	// Собираем пары имя/изображение персонажей
	for i := 0; ; i++ {
		name := c.PostForm(fmt.Sprintf("character_name_%d", i))
		files := form.File[fmt.Sprintf("character_image_%d", i)]
		if name == "" && len(files) == 0 {
			break
		}
		if name == "" || len(files) == 0 {
			handleServiceError(c, models.ErrNoCharacters)
			return
		}
		fh := files[0]
		if h.cfg.MaxUploadBytes > 0 && fh.Size > h.cfg.MaxUploadBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
				Code:    models.ErrCodeValidation,
				Message: fmt.Sprintf("character image %d exceeds the size limit", i),
			})
			return
		}
		f, openErr := fh.Open()
		if openErr != nil {
			handleServiceError(c, fmt.Errorf("failed to open uploaded file: %w", openErr))
			return
		}
		defer f.Close()
		req.Characters = append(req.Characters, service.CharacterUpload{
			Name:     name,
			Filename: fh.Filename,
			Reader:   f,
		})
	}

	if bgFiles := form.File["background"]; len(bgFiles) > 0 {
		fh := bgFiles[0]
		if h.cfg.MaxUploadBytes > 0 && fh.Size > h.cfg.MaxUploadBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
				Code:    models.ErrCodeValidation,
				Message: "background image exceeds the size limit",
			})
			return
		}
		f, openErr := fh.Open()
		if openErr != nil {
			handleServiceError(c, fmt.Errorf("failed to open uploaded file: %w", openErr))
			return
		}
		defer f.Close()
		req.Background = &service.Upload{Filename: fh.Filename, Reader: f}
	}

	result, err := h.dispatch.Submit(c.Request.Context(), req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, submitResponse{
		SubmissionID: result.SubmissionID,
		LineCount:    result.LineCount,
	})
}

// gallery возвращает страницу панелей пользователя, новые сначала.
func (h *PanelHandler) gallery(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		handleServiceError(c, models.ErrTokenInvalid)
		return
	}

	limit := h.cfg.GalleryPageSize
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	offset := 0
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	panels, err := h.panels.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	total, err := h.panels.CountByUser(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, galleryResponse{
		Panels: panels,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// dashboard возвращает сводку профиля: баланс, счетчики, количество панелей.
func (h *PanelHandler) dashboard(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		handleServiceError(c, models.ErrTokenInvalid)
		return
	}

	ctx := c.Request.Context()
	if err := h.profiles.EnsureProfile(ctx, userID); err != nil {
		handleServiceError(c, err)
		return
	}
	profile, err := h.profiles.GetProfile(ctx, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	totalPanels, err := h.panels.CountByUser(ctx, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	recent, err := h.panels.ListByUser(ctx, userID, 10, 0)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dashboardResponse{
		UserID:               profile.UserID.String(),
		TokenBalance:         profile.TokenBalance,
		TotalTokensPurchased: profile.TotalTokensPurchased,
		TotalImagesGenerated: profile.TotalImagesGenerated,
		TotalPanels:          totalPanels,
		MemberSince:          profile.CreatedAt,
		RecentPanels:         recent,
	})
}

// getSubmission возвращает статус отправки. Чужие отправки не раскрываются.
func (h *PanelHandler) getSubmission(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		handleServiceError(c, models.ErrTokenInvalid)
		return
	}

	submissionID := c.Param("submission_id")
	status, err := h.tracker.GetSubmission(c.Request.Context(), submissionID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if status.UserID != userID.String() {
		// Не подтверждаем существование чужой отправки
		handleServiceError(c, models.ErrSubmissionNotFound)
		return
	}

	c.JSON(http.StatusOK, status)
}

// listPackages возвращает активные пакеты токенов.
func (h *PanelHandler) listPackages(c *gin.Context) {
	packages, err := h.tokens.ListActivePackages(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": packages})
}

// createPurchase создает pending-покупку по запросу платежного сервиса.
func (h *PanelHandler) createPurchase(c *gin.Context) {
	var req createPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code:    models.ErrCodeValidation,
			Message: err.Error(),
		})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code:    models.ErrCodeValidation,
			Message: "userId is not a valid UUID",
		})
		return
	}

	ctx := c.Request.Context()
	pkg, err := h.tokens.GetPackage(ctx, req.PackageID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if !pkg.IsActive {
		handleServiceError(c, models.ErrPackageNotFound)
		return
	}

	purchase := &models.TokenPurchase{
		UserID:            userID,
		PackageID:         &pkg.ID,
		TokenAmount:       pkg.TokenAmount,
		PriceCents:        pkg.PriceCents,
		ExternalSessionID: req.ExternalSessionID,
	}
	if err := h.tokens.CreatePurchase(ctx, purchase); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, purchase)
}

// completePurchase завершает покупку и зачисляет токены. Идемпотентен.
func (h *PanelHandler) completePurchase(c *gin.Context) {
	purchaseID, err := uuid.Parse(c.Param("purchase_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code:    models.ErrCodeValidation,
			Message: "purchase_id is not a valid UUID",
		})
		return
	}

	ctx := c.Request.Context()
	if err := h.tokens.CompletePurchase(ctx, purchaseID); err != nil {
		handleServiceError(c, err)
		return
	}
	purchase, err := h.tokens.GetPurchase(ctx, purchaseID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, purchase)
}

// getPurchase возвращает покупку по ID.
func (h *PanelHandler) getPurchase(c *gin.Context) {
	purchaseID, err := uuid.Parse(c.Param("purchase_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code:    models.ErrCodeValidation,
			Message: "purchase_id is not a valid UUID",
		})
		return
	}

	purchase, err := h.tokens.GetPurchase(c.Request.Context(), purchaseID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, purchase)
}
