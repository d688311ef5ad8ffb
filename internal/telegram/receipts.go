package telegram

import (
	"context"
	"math"
	"os"
	"strings"

	"github.com/go-telegram/bot/models"

	"kazo/internal/core"
	"kazo/internal/llm"
	"kazo/internal/log"
	"kazo/internal/pending"
)

// Receipt documents accepted, by MIME type, with the temp file suffix the
// extraction backend needs to recognise the format.
var receiptSuffixes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"image/heif":      ".heif",
}

const receiptMismatchTolerance = 0.10

// isProductCaption reports whether a photo asks for product identification
// rather than receipt extraction.
func isProductCaption(caption string) bool {
	c := strings.ToLower(caption)
	return strings.Contains(c, "price") || strings.Contains(c, "product")
}

func (h *Handler) handlePhoto(ctx context.Context, msg *models.Message) error {
	photo := msg.Photo[len(msg.Photo)-1]
	if isProductCaption(msg.Caption) {
		if err := h.reply(ctx, msg, msgProductProcessing); err != nil {
			return err
		}
		return h.processProductPhoto(ctx, msg, photo.FileID)
	}
	if err := h.reply(ctx, msg, msgReceiptProcessing); err != nil {
		return err
	}
	return h.processReceipt(ctx, msg, photo.FileID, ".jpg")
}

// handleDocument treats supported images and PDFs as receipts and ignores
// every other document.
func (h *Handler) handleDocument(ctx context.Context, msg *models.Message) error {
	suffix, ok := receiptSuffixes[msg.Document.MimeType]
	if !ok {
		return nil
	}
	if err := h.reply(ctx, msg, msgDocumentProcessing); err != nil {
		return err
	}
	return h.processReceipt(ctx, msg, msg.Document.FileID, suffix)
}

func (h *Handler) processReceipt(ctx context.Context, msg *models.Message, fileID, suffix string) error {
	chatID := msg.Chat.ID
	logger := h.log(ctx)

	path, err := h.sender.Download(ctx, fileID, suffix)
	if err != nil {
		logger.WarnContext(ctx, "Failed to download receipt", log.FieldChatID, chatID, log.FieldError, err)
		return h.reply(ctx, msg, msgReceiptFailed)
	}
	defer os.Remove(path)

	data, err := h.promptData(ctx, chatID)
	if err != nil {
		return err
	}
	system, err := llm.ParseReceiptPrompt(data)
	if err != nil {
		return err
	}
	parsed, err := llm.Decode[llm.ParsedReceipt](ctx, h.LLM, llm.Request{
		Prompt:       "Extract all information from this receipt.",
		SystemPrompt: system,
		Schema:       llm.ReceiptSchema,
		SchemaName:   "receipt",
		ImagePath:    path,
		ChatID:       chatID,
	})
	if err != nil {
		if isRateLimited(err) {
			return err
		}
		logger.WarnContext(ctx, "Failed to parse receipt", log.FieldChatID, chatID, log.FieldError, err)
		return h.reply(ctx, msg, msgReceiptFailed)
	}
	if parsed.Total <= 0 {
		return h.reply(ctx, msg, msgInvalidTotal)
	}

	e, err := h.buildExpense(ctx, msg, parsed.Total, parsed.Currency, parsed.Category, parsed.ExpenseDate, core.SourceReceipt)
	if err != nil {
		return err
	}
	e.Store = deref(parsed.Store)
	e.ItemsJSON = itemsJSON(parsed.Items)

	items := core.ParseItems(e.ItemsJSON, e.Currency)
	if sum := core.PricedSum(items); sum > 0 && math.Abs(sum-parsed.Total)/parsed.Total > receiptMismatchTolerance {
		logger.WarnContext(ctx, "Receipt total does not match items",
			log.FieldChatID, chatID,
			"total", parsed.Total,
			"items_sum", sum)
	}

	title := "🧾 Receipt"
	if e.Store != "" {
		title += " from " + e.Store
	}
	header, err := h.confirmationHeader(ctx, e, title, data.BaseCurrency)
	if err != nil {
		return err
	}
	_, err = h.workflow.Open(ctx, chatID, pending.Entry{Expense: e, DisplayText: header, Items: items})
	return err
}

// processProductPhoto identifies products on a shelf photo. When price tags
// are visible the priced items become a pending expense; otherwise the
// products are only listed.
func (h *Handler) processProductPhoto(ctx context.Context, msg *models.Message, fileID string) error {
	chatID := msg.Chat.ID
	logger := h.log(ctx)

	path, err := h.sender.Download(ctx, fileID, ".jpg")
	if err != nil {
		logger.WarnContext(ctx, "Failed to download product photo", log.FieldChatID, chatID, log.FieldError, err)
		return h.reply(ctx, msg, msgProductFailed)
	}
	defer os.Remove(path)

	data, err := h.promptData(ctx, chatID)
	if err != nil {
		return err
	}
	system, err := llm.ProductPrompt(data)
	if err != nil {
		return err
	}
	parsed, err := llm.Decode[llm.ParsedProduct](ctx, h.LLM, llm.Request{
		Prompt:       "Identify the products in this photo.",
		SystemPrompt: system,
		Schema:       llm.ProductSchema,
		SchemaName:   "products",
		ImagePath:    path,
		ChatID:       chatID,
	})
	if err != nil {
		if isRateLimited(err) {
			return err
		}
		logger.WarnContext(ctx, "Failed to identify products", log.FieldChatID, chatID, log.FieldError, err)
		return h.reply(ctx, msg, msgProductFailed)
	}

	code := data.BaseCurrency
	if c := deref(parsed.Currency); c != "" {
		code = c
	}
	items := core.ParseItems(itemsJSON(parsed.Items), code)
	if len(items) == 0 {
		return h.reply(ctx, msg, msgProductFailed)
	}
	total := core.RoundMoney(core.PricedSum(items))
	if total <= 0 {
		var b strings.Builder
		b.WriteString("🛍 Products spotted:")
		for _, it := range items {
			b.WriteString("\n  • " + it.Name)
		}
		b.WriteString("\n\nNo prices were visible. Send them as text, e.g. \"" + strings.ToLower(items[0].Name) + " 2.50\".")
		return h.reply(ctx, msg, b.String())
	}

	e, err := h.buildExpense(ctx, msg, total, code, parsed.Category, h.today().String(), core.SourceProductPhoto)
	if err != nil {
		return err
	}
	e.Store = deref(parsed.Store)
	e.ItemsJSON = core.ItemsJSON(items)
	for i := range items {
		items[i].Currency = e.Currency
	}

	header, err := h.confirmationHeader(ctx, e, "🛍 Products", data.BaseCurrency)
	if err != nil {
		return err
	}
	_, err = h.workflow.Open(ctx, chatID, pending.Entry{Expense: e, DisplayText: header, Items: items})
	return err
}
