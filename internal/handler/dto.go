package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fable-server/internal/models"
)

const (
	maxPromptLength = 2000
	maxChoiceLength = 500
)

// injectionDenylist - паттерны prompt-инъекций. Вход, содержащий любой
// из них, отклоняется до обращения к провайдерам.
var injectionDenylist = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard previous instructions",
	"system prompt",
	"you are now",
	"act as the system",
	"<script",
	"javascript:",
}

// generateSegmentRequest - тело запроса генерации сегмента.
// Ровно одно из полей prompt/choiceText должно быть непустым.
type generateSegmentRequest struct {
	Prompt          string  `json:"prompt"`
	StoryID         *string `json:"storyId"`
	ParentSegmentID *string `json:"parentSegmentId"`
	ChoiceText      string  `json:"choiceText"`
	StoryMode       string  `json:"storyMode"`
	SkipImage       bool    `json:"skipImage"`
	SkipAudio       bool    `json:"skipAudio"`
}

// validate проверяет вход до любых обращений к провайдерам.
func (r *generateSegmentRequest) validate() error {
	hasPrompt := strings.TrimSpace(r.Prompt) != ""
	hasChoice := strings.TrimSpace(r.ChoiceText) != ""

	if hasPrompt == hasChoice {
		return fmt.Errorf("%w: exactly one of prompt or choiceText is required", models.ErrMissingInput)
	}
	if hasPrompt && len([]rune(r.Prompt)) > maxPromptLength {
		return fmt.Errorf("%w: prompt exceeds %d characters", models.ErrPromptTooLong, maxPromptLength)
	}
	if hasChoice && len([]rune(r.ChoiceText)) > maxChoiceLength {
		return fmt.Errorf("%w: choiceText exceeds %d characters", models.ErrChoiceTooLong, maxChoiceLength)
	}
	if hasChoice && (r.StoryID == nil || *r.StoryID == "") {
		return fmt.Errorf("%w: choiceText requires storyId", models.ErrMissingInput)
	}

	for _, input := range []string{r.Prompt, r.ChoiceText} {
		lowered := strings.ToLower(input)
		for _, pattern := range injectionDenylist {
			if strings.Contains(lowered, pattern) {
				return fmt.Errorf("%w: input rejected", models.ErrUnsafeInput)
			}
		}
	}
	return nil
}

func parseOptionalUUID(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid UUID %q", models.ErrBadRequest, *s)
	}
	return &id, nil
}

// assembleAudioRequest - тело запроса сборки аудио.
type assembleAudioRequest struct {
	VoiceID string `json:"voiceId"`
}

// validateSettings проверяет настройки генерации перед сохранением.
func validateSettings(st models.GenerationSettings) error {
	if len(st.ProviderOrder) == 0 {
		return fmt.Errorf("%w: provider_order must not be empty", models.ErrValidation)
	}
	if st.MinWords <= 0 || st.MaxWords < st.MinWords {
		return fmt.Errorf("%w: word count range is invalid", models.ErrValidation)
	}
	if st.Temperature < 0 || st.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be within [0, 2]", models.ErrValidation)
	}
	if st.EstimatedTotalLength <= 0 {
		return fmt.Errorf("%w: estimated_total_length must be positive", models.ErrValidation)
	}
	return nil
}

// segmentResponse - сериализуемое представление сегмента в ответах API.
type segmentResponse struct {
	ID                   string  `json:"id"`
	StoryID              string  `json:"story_id"`
	SegmentText          string  `json:"segment_text"`
	Choices              []string `json:"choices"`
	IsEnd                bool    `json:"is_end"`
	ImageURL             *string `json:"image_url"`
	ImageStatus          string  `json:"image_status"`
	ParentSegmentID      *string `json:"parent_segment_id,omitempty"`
	TriggeringChoiceText *string `json:"triggering_choice_text,omitempty"`
	CreatedAt            string  `json:"created_at"`
	UpdatedAt            string  `json:"updated_at"`
}

func toSegmentResponse(seg *models.StorySegment) segmentResponse {
	resp := segmentResponse{
		ID:                   seg.ID.String(),
		StoryID:              seg.StoryID.String(),
		SegmentText:          seg.Text,
		Choices:              seg.Choices,
		IsEnd:                seg.IsEnd,
		ImageURL:             seg.ImageURL,
		ImageStatus:          string(seg.ImageStatus),
		TriggeringChoiceText: seg.TriggeringChoiceText,
		CreatedAt:            seg.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            seg.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if resp.Choices == nil {
		resp.Choices = []string{}
	}
	if seg.ParentSegmentID != nil {
		parent := seg.ParentSegmentID.String()
		resp.ParentSegmentID = &parent
	}
	return resp
}
