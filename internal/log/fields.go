package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldTraceID    = "trace_id"
	FieldUpdateID   = "update_id"
	FieldChatID     = "chat_id"
	FieldUserID     = "user_id"
	FieldMessageID  = "message_id"
	FieldHandler    = "handler"
	FieldExpenseID  = "expense_id"
	FieldCurrency   = "currency"
	FieldPair       = "pair"
	FieldAmount     = "amount"
	FieldAmountBase = "amount_base"
	FieldDuration   = "duration_ms"
	FieldAttempt    = "attempt"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldStack      = "stack"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentBot       = "bot"
	ComponentPending   = "pending"
	ComponentCurrency  = "currency"
	ComponentStorage   = "storage"
	ComponentLLM       = "llm"
	ComponentExpense   = "expense"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentRateLimit = "rate_limit"
	ComponentHealth    = "health"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpConfirm  = "confirm"
	OpCancel   = "cancel"
	OpFetch    = "fetch"
	OpExtract  = "extract"
	OpPublish  = "publish"
	OpSync     = "sync"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithChat(chatID int64) LogFields {
	f[FieldChatID] = chatID
	return f
}

func (f LogFields) WithExpenseID(id int64) LogFields {
	f[FieldExpenseID] = id
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithAmount adds the original and base amounts of an expense
func (f LogFields) WithAmount(amount float64, currency string, amountBase float64) LogFields {
	f[FieldAmount] = amount
	f[FieldCurrency] = currency
	f[FieldAmountBase] = amountBase
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
