package llm

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

// PromptData fills the system prompt templates.
type PromptData struct {
	Today        string
	BaseCurrency string
	Categories   string

	// Edit prompts describe the expense being corrected.
	Amount      float64
	Currency    string
	AmountBase  float64
	Category    string
	Store       string
	ExpenseDate string
}

func render(name string, data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

func ParseExpensePrompt(d PromptData) (string, error) { return render("parse_expense.tmpl", d) }
func EditExpensePrompt(d PromptData) (string, error)  { return render("edit_expense.tmpl", d) }
func ParseReceiptPrompt(d PromptData) (string, error) { return render("parse_receipt.tmpl", d) }
func ProductPrompt(d PromptData) (string, error)      { return render("product_photo.tmpl", d) }
func IntentPrompt() (string, error)                   { return render("classify_intent.tmpl", PromptData{}) }

func QueryPrompt(base string) string {
	return "You are Kazo, a family expense tracker. Answer the user's question based on the expense data provided. " +
		"Be concise (2-4 sentences). Use " + base + " for amounts. If the data doesn't contain enough info, say so."
}

const ChatPrompt = "You are Kazo, a family expense tracker bot. Respond briefly and friendly. " +
	"Keep it to 1-2 sentences. " +
	"If they seem to want to log an expense, remind them to include an amount."
