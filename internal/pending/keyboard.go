package pending

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"kazo/internal/core"
)

// Callback data understood by the workflow.
const (
	CallbackPrefix    = "expense:"
	CallbackConfirm   = "expense:confirm"
	CallbackCancel    = "expense:cancel"
	CallbackEditItems = "expense:edit_items"
	callbackRemove    = "expense:remove:"
)

func removeCallback(i int) string {
	return callbackRemove + strconv.Itoa(i)
}

// ParseRemove extracts the item index from a remove callback.
func ParseRemove(data string) (int, bool) {
	rest, ok := strings.CutPrefix(data, callbackRemove)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// ConfirmationKeyboard offers Edit Items only when there is something to edit.
func ConfirmationKeyboard(hasItems bool) *models.InlineKeyboardMarkup {
	row := []models.InlineKeyboardButton{{Text: "✅ Confirm", CallbackData: CallbackConfirm}}
	if hasItems {
		row = append(row, models.InlineKeyboardButton{Text: "✏️ Edit Items", CallbackData: CallbackEditItems})
	}
	row = append(row, models.InlineKeyboardButton{Text: "❌ Cancel", CallbackData: CallbackCancel})
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{row}}
}

// ItemsKeyboard lists one remove button per item followed by Done and Cancel.
func ItemsKeyboard(items []core.ExpenseItem) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(items)+1)
	for i, it := range items {
		rows = append(rows, []models.InlineKeyboardButton{{
			Text:         "🗑 " + itemLabel(it),
			CallbackData: removeCallback(i),
		}})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "✅ Done", CallbackData: CallbackConfirm},
		{Text: "❌ Cancel", CallbackData: CallbackCancel},
	})
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func itemLabel(it core.ExpenseItem) string {
	if it.Price == nil {
		return it.Name
	}
	return fmt.Sprintf("%s (%.2f)", it.Name, *it.Price)
}

// FormatItems renders the item block appended to confirmation messages.
func FormatItems(items []core.ExpenseItem) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n🛒 Items:")
	for _, it := range items {
		b.WriteString("\n  ")
		b.WriteString(it.Name)
		if it.Price != nil {
			fmt.Fprintf(&b, ": %.2f %s", *it.Price, it.Currency)
		}
		if it.Quantity != 1 && it.Quantity > 0 {
			fmt.Fprintf(&b, " x%.0f", it.Quantity)
		}
	}
	return b.String()
}
