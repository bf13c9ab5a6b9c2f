package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fable-server/internal/models"
	"fable-server/internal/service"
)

// StoryAPI - контракт сервиса историй, используемый хендлерами.
type StoryAPI interface {
	GenerateSegment(ctx context.Context, req service.GenerateSegmentRequest) (*models.StorySegment, error)
	RegenerateImage(ctx context.Context, segmentID uuid.UUID) (*models.StorySegment, error)
	FinishStory(ctx context.Context, storyID uuid.UUID) error
	GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error)
	GetSegment(ctx context.Context, segmentID uuid.UUID) (*models.StorySegment, error)
	ListSegments(ctx context.Context, storyID uuid.UUID) ([]models.StorySegment, error)
}

// AudioAPI - контракт сборщика аудио.
type AudioAPI interface {
	AssembleStoryAudio(ctx context.Context, storyID uuid.UUID, voiceID string) (*service.AudioResult, error)
}

// SettingsAPI - контракт динамических настроек генерации.
type SettingsAPI interface {
	Get(ctx context.Context) models.GenerationSettings
	Update(ctx context.Context, st models.GenerationSettings) error
}

// Handler обрабатывает HTTP-запросы генерации историй.
type Handler struct {
	storySvc    StoryAPI
	audioSvc    AudioAPI
	settingsSvc SettingsAPI
	logger      *zap.Logger
}

// NewHandler создает Handler.
func NewHandler(storySvc StoryAPI, audioSvc AudioAPI, settingsSvc SettingsAPI, logger *zap.Logger) *Handler {
	return &Handler{
		storySvc:    storySvc,
		audioSvc:    audioSvc,
		settingsSvc: settingsSvc,
		logger:      logger.Named("Handler"),
	}
}

// RegisterRoutes регистрирует маршруты API.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		stories := api.Group("/stories")
		{
			stories.POST("/generate", h.generateSegment)
			stories.GET("/:id", h.getStory)
			stories.GET("/:id/segments", h.listSegments)
			stories.POST("/:id/finish", h.finishStory)
			stories.POST("/:id/audio", h.assembleAudio)
		}
		segments := api.Group("/segments")
		{
			segments.GET("/:id", h.getSegment)
			segments.POST("/:id/image/regenerate", h.regenerateImage)
		}
		admin := api.Group("/admin")
		{
			admin.GET("/settings", h.getSettings)
			admin.PUT("/settings", h.updateSettings)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// generateSegment - один шаг истории: текст возвращается сразу,
// иллюстрация догоняет асинхронно.
func (h *Handler) generateSegment(c *gin.Context) {
	var req generateSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, fmt.Errorf("%w: invalid request body", models.ErrBadRequest))
		return
	}
	if err := req.validate(); err != nil {
		h.respondError(c, err)
		return
	}

	storyID, err := parseOptionalUUID(req.StoryID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	parentID, err := parseOptionalUUID(req.ParentSegmentID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	segment, err := h.storySvc.GenerateSegment(c.Request.Context(), service.GenerateSegmentRequest{
		Prompt:          req.Prompt,
		StoryID:         storyID,
		ParentSegmentID: parentID,
		ChoiceText:      req.ChoiceText,
		StoryMode:       req.StoryMode,
		SkipImage:       req.SkipImage,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": toSegmentResponse(segment)})
}

func (h *Handler) getStory(c *gin.Context) {
	storyID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	story, err := h.storySvc.GetStory(c.Request.Context(), storyID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": story})
}

func (h *Handler) listSegments(c *gin.Context) {
	storyID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	segments, err := h.storySvc.ListSegments(c.Request.Context(), storyID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	data := make([]segmentResponse, 0, len(segments))
	for i := range segments {
		data = append(data, toSegmentResponse(&segments[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func (h *Handler) getSegment(c *gin.Context) {
	segmentID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	segment, err := h.storySvc.GetSegment(c.Request.Context(), segmentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": toSegmentResponse(segment)})
}

// finishStory - единственный путь выставления is_completed.
func (h *Handler) finishStory(c *gin.Context) {
	storyID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.storySvc.FinishStory(c.Request.Context(), storyID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// assembleAudio синхронно собирает полную аудио-версию завершённой истории.
func (h *Handler) assembleAudio(c *gin.Context) {
	storyID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	// Тело опционально: без него берется голос по умолчанию.
	var req assembleAudioRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondError(c, fmt.Errorf("%w: invalid request body", models.ErrBadRequest))
			return
		}
	}
	if req.VoiceID == "" {
		req.VoiceID = "Joanna"
	}

	result, err := h.audioSvc.AssembleStoryAudio(c.Request.Context(), storyID, req.VoiceID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"audioUrl": result.AudioURL,
		"fileSize": result.FileSize,
	})
}

// regenerateImage перезапускает генерацию иллюстрации сегмента.
// Сама генерация фоновая: клиент наблюдает image_status через поллинг.
func (h *Handler) regenerateImage(c *gin.Context) {
	segmentID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	segment, err := h.storySvc.RegenerateImage(c.Request.Context(), segmentID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"imageUrl": segment.ImageURL,
		"data":     toSegmentResponse(segment),
	})
}

// getSettings отдает действующие настройки генерации.
func (h *Handler) getSettings(c *gin.Context) {
	st := h.settingsSvc.Get(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "data": st})
}

// updateSettings сохраняет настройки генерации. Действовать они начинают
// со следующего запроса генерации (настройки читаются на каждый запрос).
func (h *Handler) updateSettings(c *gin.Context) {
	var st models.GenerationSettings
	if err := c.ShouldBindJSON(&st); err != nil {
		h.respondError(c, fmt.Errorf("%w: invalid request body", models.ErrBadRequest))
		return
	}
	if err := validateSettings(st); err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.settingsSvc.Update(c.Request.Context(), st); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": st})
}

func (h *Handler) pathUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: invalid %s format", models.ErrBadRequest, param))
		return uuid.UUID{}, false
	}
	return id, true
}

// respondError переводит доменные ошибки в HTTP-статусы и единый
// конверт {success:false, error, code}.
func (h *Handler) respondError(c *gin.Context, err error) {
	var statusCode int
	var code string

	switch {
	case errors.Is(err, models.ErrPromptTooLong),
		errors.Is(err, models.ErrChoiceTooLong),
		errors.Is(err, models.ErrUnsafeInput),
		errors.Is(err, models.ErrMissingInput),
		errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrBadRequest):
		statusCode = http.StatusBadRequest
		code = "VALIDATION_ERROR"
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrStoryNotFound),
		errors.Is(err, models.ErrSegmentNotFound):
		statusCode = http.StatusNotFound
		code = "NOT_FOUND"
	case errors.Is(err, models.ErrStoryAlreadyCompleted),
		errors.Is(err, models.ErrAudioAlreadyInFlight),
		errors.Is(err, models.ErrImageNotRetryable):
		statusCode = http.StatusConflict
		code = "CONFLICT"
	case errors.Is(err, models.ErrStoryNotCompleted):
		statusCode = http.StatusBadRequest
		code = "STORY_NOT_COMPLETED"
	case errors.Is(err, models.ErrGenerationFailed):
		statusCode = http.StatusBadGateway
		code = "GENERATION_FAILED"
	default:
		statusCode = http.StatusInternalServerError
		code = "INTERNAL_ERROR"
		h.logger.Error("Unhandled service error", zap.Error(err))
	}

	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		message = "internal server error"
	}

	c.AbortWithStatusJSON(statusCode, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
