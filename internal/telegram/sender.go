package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"kazo/internal/pending"
)

// Sender is everything the handlers need from the chat platform.
type Sender interface {
	pending.Messenger
	SendPhoto(ctx context.Context, chatID int64, filename string, r io.Reader, caption string) error
	SendDocument(ctx context.Context, chatID int64, filename string, r io.Reader, caption string) error
	// Download stores the file in a temporary file with the given suffix and
	// returns its path. The caller removes it.
	Download(ctx context.Context, fileID, suffix string) (string, error)
}

// APISender implements Sender on top of the Bot API client.
type APISender struct {
	api    *bot.Bot
	client *http.Client
}

func NewAPISender(api *bot.Bot) *APISender {
	return &APISender{
		api:    api,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *APISender) SendText(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) (int, error) {
	msg, err := s.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return msg.ID, nil
}

func (s *APISender) EditText(ctx context.Context, chatID int64, messageID int, text string, markup models.ReplyMarkup) error {
	_, err := s.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

func (s *APISender) ClearKeyboard(ctx context.Context, chatID int64, messageID int) error {
	_, err := s.api.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      chatID,
		MessageID:   messageID,
		ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{}},
	})
	if err != nil {
		return fmt.Errorf("clear keyboard: %w", err)
	}
	return nil
}

func (s *APISender) AnswerCallback(ctx context.Context, callbackID, text string) error {
	_, err := s.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func (s *APISender) SendPhoto(ctx context.Context, chatID int64, filename string, r io.Reader, caption string) error {
	_, err := s.api.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &models.InputFileUpload{Filename: filename, Data: r},
		Caption: caption,
	})
	if err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

func (s *APISender) SendDocument(ctx context.Context, chatID int64, filename string, r io.Reader, caption string) error {
	_, err := s.api.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &models.InputFileUpload{Filename: filename, Data: r},
		Caption:  caption,
	})
	if err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}

func (s *APISender) Download(ctx context.Context, fileID, suffix string) (string, error) {
	file, err := s.api.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.api.FileDownloadLink(file), nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "kazo-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), nil
}
