package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// ErrSynthesisFailed возвращается при любой ошибке синтеза речи.
var ErrSynthesisFailed = errors.New("speech synthesis failed")

// Synthesizer озвучивает один фрагмент текста и возвращает MP3-байты.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// pollyClient - подмножество API Polly, используемое синтезатором.
type pollyClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollySynthesizer - адаптер AWS Polly. Формат вывода всегда MP3, чтобы
// фрагменты можно было склеивать простой конкатенацией.
type PollySynthesizer struct {
	client  pollyClient
	engine  pollytypes.Engine
	timeout time.Duration
	logger  *zap.Logger
}

var _ Synthesizer = (*PollySynthesizer)(nil)

// NewPollySynthesizer создает синтезатор с клиентом из стандартной цепочки
// AWS-кредов. engine: "neural" или "standard".
func NewPollySynthesizer(ctx context.Context, region, engine string, timeout time.Duration, logger *zap.Logger) (*PollySynthesizer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки AWS-конфигурации: %w", err)
	}
	return NewPollySynthesizerWithClient(polly.NewFromConfig(cfg), engine, timeout, logger), nil
}

// NewPollySynthesizerWithClient принимает готовый клиент (для тестов).
func NewPollySynthesizerWithClient(client pollyClient, engine string, timeout time.Duration, logger *zap.Logger) *PollySynthesizer {
	eng := pollytypes.EngineStandard
	if engine == "neural" {
		eng = pollytypes.EngineNeural
	}
	return &PollySynthesizer{
		client:  client,
		engine:  eng,
		timeout: timeout,
		logger:  logger.Named("PollySynthesizer"),
	}
}

// Synthesize озвучивает text голосом voiceID и возвращает MP3-байты.
func (s *PollySynthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := s.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		VoiceId:      pollytypes.VoiceId(voiceID),
		Engine:       s.engine,
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			s.logger.Error("Polly API error",
				zap.String("code", apiErr.ErrorCode()),
				zap.String("message", apiErr.ErrorMessage()),
				zap.String("voiceId", voiceID))
		} else {
			s.logger.Error("Polly request failed", zap.Error(err), zap.String("voiceId", voiceID))
		}
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	defer out.AudioStream.Close()

	data, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("%w: ошибка чтения аудиопотока: %v", ErrSynthesisFailed, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: пустой аудиопоток", ErrSynthesisFailed)
	}

	s.logger.Debug("Speech synthesized",
		zap.Int("textLen", len(text)),
		zap.Int("audioBytes", len(data)),
		zap.String("voiceId", voiceID))
	return data, nil
}
