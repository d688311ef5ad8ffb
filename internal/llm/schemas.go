package llm

import (
	"encoding/json"
)

// Intent names returned by the classifier.
const (
	IntentExpense       = "expense"
	IntentUndo          = "undo"
	IntentEdit          = "edit"
	IntentSummary       = "summary"
	IntentQuery         = "query"
	IntentCategories    = "categories"
	IntentSubscriptions = "subscriptions"
	IntentRate          = "rate"
	IntentSearch        = "search"
	IntentPrice         = "price"
	IntentItems         = "items"
	IntentHelp          = "help"
	IntentChat          = "chat"
)

var ExpenseSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "amount": {"type": "number", "exclusiveMinimum": 0},
    "currency": {"type": "string", "pattern": "^[A-Z]{3}$"},
    "category": {"type": "string", "minLength": 1},
    "store": {"type": ["string", "null"]},
    "description": {"type": "string", "minLength": 1},
    "note": {"type": ["string", "null"]},
    "expense_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "items": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "price": {"type": ["number", "null"]},
          "quantity": {"type": "number", "default": 1}
        },
        "required": ["name"]
      }
    }
  },
  "required": ["amount", "currency", "category", "description", "expense_date"],
  "additionalProperties": false
}`)

var EditSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "amount": {"type": "number", "exclusiveMinimum": 0},
    "currency": {"type": "string", "pattern": "^[A-Z]{3}$"},
    "category": {"type": "string", "minLength": 1},
    "store": {"type": ["string", "null"]},
    "note": {"type": ["string", "null"]},
    "expense_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}
  },
  "additionalProperties": false
}`)

var ReceiptSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "store": {"type": ["string", "null"]},
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "price": {"type": "number"}
        },
        "required": ["name", "price"]
      }
    },
    "total": {"type": "number"},
    "currency": {"type": "string"},
    "category": {"type": "string"},
    "expense_date": {"type": "string"}
  },
  "required": ["total", "currency", "category", "expense_date"]
}`)

var ProductSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "price": {"type": ["number", "null"]},
          "quantity": {"type": "number", "default": 1}
        },
        "required": ["name"]
      }
    },
    "store": {"type": ["string", "null"]},
    "currency": {"type": ["string", "null"]},
    "category": {"type": "string"}
  },
  "required": ["items", "category"]
}`)

var IntentSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "intent": {
      "type": "string",
      "enum": ["expense", "undo", "edit", "summary", "query", "categories", "subscriptions",
               "rate", "search", "price", "items", "help", "chat"]
    },
    "args": {
      "type": "string",
      "description": "Extracted argument if any (e.g. item name for price, category name for categories)"
    }
  },
  "required": ["intent"],
  "additionalProperties": false
}`)

// ParsedItem is one line as the model reports it. Price is the line total.
type ParsedItem struct {
	Name     string   `json:"name"`
	Price    *float64 `json:"price"`
	Quantity *float64 `json:"quantity,omitempty"`
}

type ParsedExpense struct {
	Amount      float64      `json:"amount"`
	Currency    string       `json:"currency"`
	Category    string       `json:"category"`
	Store       *string      `json:"store"`
	Description string       `json:"description"`
	Note        *string      `json:"note"`
	ExpenseDate string       `json:"expense_date"`
	Items       []ParsedItem `json:"items"`
}

// ParsedEdit holds only the fields the user asked to change. A JSON null
// for store or note clears it.
type ParsedEdit struct {
	Amount      *float64 `json:"amount"`
	Currency    *string  `json:"currency"`
	Category    *string  `json:"category"`
	Store       Optional `json:"store"`
	Note        Optional `json:"note"`
	ExpenseDate *string  `json:"expense_date"`
}

// IsEmpty reports whether the model found nothing to change.
func (e ParsedEdit) IsEmpty() bool {
	return e.Amount == nil && e.Currency == nil && e.Category == nil &&
		!e.Store.Set && !e.Note.Set && e.ExpenseDate == nil
}

// Optional distinguishes an absent key from an explicit null.
type Optional struct {
	Set   bool
	Value *string
}

func (o *Optional) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

type ParsedReceipt struct {
	Store       *string      `json:"store"`
	Items       []ParsedItem `json:"items"`
	Total       float64      `json:"total"`
	Currency    string       `json:"currency"`
	Category    string       `json:"category"`
	ExpenseDate string       `json:"expense_date"`
}

type ParsedProduct struct {
	Items    []ParsedItem `json:"items"`
	Store    *string      `json:"store"`
	Currency *string      `json:"currency"`
	Category string       `json:"category"`
}

type Intent struct {
	Intent string `json:"intent"`
	Args   string `json:"args,omitempty"`
}
