package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/vigil-cam/vigil/internal/models"
)

// Telegram Bot API limits. Oversized payloads are degraded deliberately
// instead of letting the API reject them: long messages are split into
// chunks, oversized photos are omitted while the text still goes out.
const (
	maxMessageRunes = 4096
	maxCaptionRunes = 1024
	maxPhotoBytes   = 10 << 20
)

// sender is the single Bot API call the notifier needs. The real
// tgbotapi.BotAPI satisfies it; tests use a fake.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers analysis text and a frame image to a Telegram chat.
type Notifier struct {
	api    sender
	chatID int64
}

// New creates a Notifier for the given bot token and chat.
func New(token string, chatID int64) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Notifier{api: bot, chatID: chatID}, nil
}

// Send delivers the message and, if present, the image. Both deliveries
// are attempted even when one fails; the record carries both outcomes.
// Failures are reported, never escalated.
func (n *Notifier) Send(ctx context.Context, text string, imageJPEG []byte) models.DeliveryRecord {
	rec := models.DeliveryRecord{}

	rec.TextOK = true
	for i, chunk := range splitMessage(text, maxMessageRunes) {
		if err := ctx.Err(); err != nil {
			rec.TextOK = false
			rec.TextErr = err.Error()
			break
		}
		msg := tgbotapi.NewMessage(n.chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := n.api.Send(msg); err != nil {
			slog.Error("Failed to send telegram message", "chunk", i, "err", err)
			rec.TextOK = false
			rec.TextErr = err.Error()
		}
	}

	switch {
	case len(imageJPEG) == 0:
		// text-only notification
	case len(imageJPEG) > maxPhotoBytes:
		rec.ImageOmitted = true
		rec.ImageErr = fmt.Sprintf("photo omitted: %d bytes exceeds %d byte limit", len(imageJPEG), maxPhotoBytes)
		slog.Warn("Frame too large for telegram, sending text only", "bytes", len(imageJPEG))
	case ctx.Err() != nil:
		rec.ImageErr = ctx.Err().Error()
	default:
		photo := tgbotapi.NewPhoto(n.chatID, tgbotapi.FileBytes{Name: "frame.jpg", Bytes: imageJPEG})
		photo.Caption = clip(caption(text), maxCaptionRunes)
		photo.ParseMode = tgbotapi.ModeHTML
		if _, err := n.api.Send(photo); err != nil {
			slog.Error("Failed to send telegram photo", "err", err)
			rec.ImageErr = err.Error()
		} else {
			rec.ImageOK = true
		}
	}

	return rec
}

// caption derives the photo caption from the first line of the message
// so the image stays self-describing in the chat history.
func caption(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line != "" {
			return line
		}
	}
	return "Surveillance frame"
}

// splitMessage cuts text into rune-bounded chunks the Bot API accepts.
// An empty text still yields one (empty skipped) chunk list.
func splitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	var chunks []string
	for len(runes) > limit {
		chunks = append(chunks, string(runes[:limit]))
		runes = runes[limit:]
	}
	return append(chunks, string(runes))
}

func clip(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
