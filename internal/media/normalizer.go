package media

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/Vovarama1992/otk-assistant/internal/ai"
	"github.com/Vovarama1992/otk-assistant/internal/inspection"
	"github.com/Vovarama1992/otk-assistant/internal/logger"
)

const module = "media"

const DefaultVisionPrompt = `Проанализируй это изображение протокола ОТК и извлеки из него весь текст.

Это может быть:
- Протокол проверки изделий с номерами заказов (например, #с10409, #с10494)
- Отчет о качестве с указанием статусов (годно, в доработку, в брак)
- Документ с техническими комментариями контролера

ВАЖНО:
1. Извлеки ВСЕ текстовые данные с изображения
2. Сохрани структуру документа (заголовки, разделы, списки)
3. Обрати особое внимание на номера заказов (обычно начинаются с #с или №)
4. Точно передай все статусы и комментарии
5. Если есть таблицы - сохрани их структуру
6. Если текст плохо читается - укажи на это

Ответь только извлеченным текстом без дополнительных комментариев.`

type Limits struct {
	MaxAudioBytes    int64
	MaxAudioDuration time.Duration
	MaxImageBytes    int64
	MaxImageWidth    int
	MaxImageHeight   int
}

// Attachment — входящее вложение. Duration/Width/Height — то, что заявил транспорт;
// ноль означает «неизвестно».
type Attachment struct {
	Kind     inspection.SourceKind
	Text     string
	Data     []byte
	MIME     string
	FileName string
	Duration time.Duration
	Width    int
	Height   int
}

type Normalized struct {
	Text   string
	Source inspection.SourceKind
}

type Normalizer struct {
	gw           ai.Caller
	limits       Limits
	visionPrompt string
	language     string
	log          logger.Logger
}

func NewNormalizer(gw ai.Caller, limits Limits, visionPrompt, language string, log logger.Logger) *Normalizer {
	if strings.TrimSpace(visionPrompt) == "" {
		visionPrompt = DefaultVisionPrompt
	}
	return &Normalizer{
		gw:           gw,
		limits:       limits,
		visionPrompt: visionPrompt,
		language:     language,
		log:          log,
	}
}

// Validate проверяет вложение до любого сетевого вызова.
// Порядок: размер, формат, длительность, разрешение. Возвращает канонический MIME.
func (n *Normalizer) Validate(a Attachment) (string, error) {
	switch a.Kind {
	case inspection.SourceVoice:
		if int64(len(a.Data)) > n.limits.MaxAudioBytes {
			return "", inspection.NewError(inspection.ErrMediaTooLarge,
				"audio is %d bytes, limit %d", len(a.Data), n.limits.MaxAudioBytes)
		}
		mt := resolveMIME(a.MIME, a.FileName, a.Data)
		if _, ok := audioFormats[mt]; !ok {
			return "", inspection.NewError(inspection.ErrUnsupportedFormat, "audio format %q", mt)
		}
		if n.limits.MaxAudioDuration > 0 && a.Duration > n.limits.MaxAudioDuration {
			return "", inspection.NewError(inspection.ErrDurationExceeded,
				"audio is %s, limit %s", a.Duration, n.limits.MaxAudioDuration)
		}
		return mt, nil

	case inspection.SourcePhoto:
		if int64(len(a.Data)) > n.limits.MaxImageBytes {
			return "", inspection.NewError(inspection.ErrMediaTooLarge,
				"image is %d bytes, limit %d", len(a.Data), n.limits.MaxImageBytes)
		}
		mt := resolveMIME(a.MIME, a.FileName, a.Data)
		if _, ok := imageFormats[mt]; !ok {
			return "", inspection.NewError(inspection.ErrUnsupportedFormat, "image format %q", mt)
		}
		w, h := a.Width, a.Height
		if w == 0 || h == 0 {
			if cfg, _, err := image.DecodeConfig(bytes.NewReader(a.Data)); err == nil {
				w, h = cfg.Width, cfg.Height
			}
		}
		if w > n.limits.MaxImageWidth || h > n.limits.MaxImageHeight {
			return "", inspection.NewError(inspection.ErrResolutionExceeded,
				"image is %dx%d, limit %dx%d", w, h, n.limits.MaxImageWidth, n.limits.MaxImageHeight)
		}
		return mt, nil

	case inspection.SourceText:
		return "text/plain", nil
	}

	return "", inspection.NewError(inspection.ErrUnsupportedFormat, "unknown attachment kind %q", a.Kind)
}

// Normalize превращает вложение в текст: голос — через Speech, фото — через Vision.
func (n *Normalizer) Normalize(ctx context.Context, a Attachment) (Normalized, error) {
	mt, err := n.Validate(a)
	if err != nil {
		n.log.Info(module, "attachment rejected", map[string]any{
			"kind":  string(a.Kind),
			"size":  len(a.Data),
			"mime":  a.MIME,
			"error": err,
		})
		return Normalized{}, err
	}

	var req ai.Request
	switch a.Kind {
	case inspection.SourceText:
		return Normalized{Text: strings.TrimSpace(a.Text), Source: inspection.SourceText}, nil

	case inspection.SourceVoice:
		req = ai.Request{
			Kind:      ai.KindSpeech,
			Operation: "transcribe",
			Payload:   ai.Payload{Data: a.Data, MIME: mt, FileName: fileNameFor(a.FileName, audioFormats[mt])},
			Options:   ai.Options{Language: n.language},
		}

	case inspection.SourcePhoto:
		req = ai.Request{
			Kind:      ai.KindVision,
			Operation: "describe",
			Payload:   ai.Payload{Data: a.Data, MIME: mt, Prompt: n.visionPrompt},
			Options:   ai.Options{MaxTokens: 2000},
		}
	}

	text, err := n.gw.Call(ctx, req)
	if err != nil {
		return Normalized{}, inspection.FromProvider(err)
	}

	n.log.Debug(module, "attachment normalized", map[string]any{
		"kind":   string(a.Kind),
		"mime":   mt,
		"length": len(text),
	})

	return Normalized{Text: strings.TrimSpace(text), Source: a.Kind}, nil
}

func fileNameFor(name, ext string) string {
	if name != "" && strings.EqualFold(filepath.Ext(name), ext) {
		return filepath.Base(name)
	}
	return "voice" + ext
}
