package telegram

const startText = "Welcome to Kazo — your family expense tracker!\n\n" +
	"Just chat naturally to log expenses:\n" +
	"  \"spent 50 on groceries\"\n" +
	"  \"coffee 4.50 at Starbucks\"\n" +
	"  \"lunch yesterday 12 euros\"\n\n" +
	"Send a receipt photo or PDF and I'll extract it automatically.\n" +
	"Send a product photo with the caption \"price\" and I'll identify items for you.\n\n" +
	"Reply to any confirmed expense to edit it.\n" +
	"You can also ask questions: \"how much on dining this month?\"\n\n" +
	"Type /help for all commands."

const helpText = "Tracking expenses:\n" +
	"  Send text with amount: \"spent 50 on groceries\"\n" +
	"  Send receipt photo/PDF\n" +
	"  Send product photo captioned \"price\"\n\n" +
	"Editing:\n" +
	"  Reply to expense → type correction\n" +
	"  /edit — edit last expense\n" +
	"  /edit <id> — edit specific expense\n" +
	"  /note <text> — add note to last expense\n" +
	"  /undo — remove last expense\n\n" +
	"Reports:\n" +
	"  /summary [week|year|q1-q4] — spending + chart\n" +
	"  /monthly — month-over-month comparison\n" +
	"  /daily — daily spending chart\n" +
	"  /stats — all-time statistics\n" +
	"  /budget — budget status\n" +
	"  /search <keyword> [YYYY-MM] — find expenses\n" +
	"  /export [YYYY-MM] — download CSV\n" +
	"  /backup — download database\n\n" +
	"Items & prices:\n" +
	"  /price <item> — price history\n" +
	"  /items [category] — recent items\n" +
	"  /compare <item> — compare across stores\n\n" +
	"Setup:\n" +
	"  /subs — subscriptions\n" +
	"  /addsub / /removesub — manage subscriptions\n" +
	"  /categories — view categories\n" +
	"  /addcategory / /removecategory\n" +
	"  /setbudget <amount> — monthly budget\n" +
	"  /removebudget [category] — drop a budget\n" +
	"  /setcurrency <code> — change base currency\n" +
	"  /rate <currency> — exchange rates\n" +
	"  /settings — view current config\n\n" +
	"You can also ask naturally: \"how much on groceries?\""

// Replies shared by several handlers.
const (
	msgGenericError       = "Something went wrong. Please try again."
	msgCallbackError      = "Something went wrong."
	msgRateLimited        = "Rate limit reached (%d/hour). Please wait a bit."
	msgUnknownCommand     = "Unknown command. Type /help for all commands."
	msgParseFailed        = "Sorry, I couldn't understand that. Try something like \"spent 50 on groceries\"."
	msgInvalidAmount      = "Couldn't determine a valid amount. Please try again."
	msgNeedAmount         = "Include an amount so I can log it, e.g. \"coffee 4.50\"."
	msgEditFailed         = "Sorry, I couldn't understand that edit."
	msgNoChanges          = "No changes detected."
	msgUpdateFailed       = "Could not update the expense."
	msgExpenseNotFound    = "Expense not found."
	msgNoExpenses         = "No expenses found."
	msgNothingToUndo      = "No expenses to undo."
	msgReceiptProcessing  = "Processing receipt..."
	msgDocumentProcessing = "Processing receipt document..."
	msgReceiptFailed      = "Sorry, I couldn't read that receipt. Try a clearer image."
	msgInvalidTotal       = "Couldn't determine a valid total. Please try again."
	msgProductProcessing  = "Looking at the products..."
	msgProductFailed      = "Sorry, I couldn't identify any products in that photo."
)
