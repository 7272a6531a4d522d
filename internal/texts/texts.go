// Package texts holds every message the bot sends.
package texts

const (
	ButtonSignUp     = "👤 Sign up"
	ButtonEnterPromo = "🎟 Enter promo code"
	ButtonSendPhone  = "📞 Send phone number"

	Start         = "🤖 Hello! You need to sign up before using the bot."
	Welcome       = "🤖 Hello, <b><a href='tg://user?id=%d'>%s</a>!</b>"
	AlreadySigned = "🤖 Dear %s, you are already signed up."
	ForEnterPromo = "Press <b>" + ButtonEnterPromo + "</b> below to enter a promo code."

	EnterName       = "✍️ Please enter your name"
	EnterPhone      = "📞 Please send your phone number with the button below"
	EnterAddress    = "🏠 Your home address:"
	EnterPromoPhoto = "🖼 Send a photo of your coupon:"
	EnterPhoto      = "🖼 Please send it as a photo"
	Registered      = "<b>✅ Your data has been saved</b>\n\n" +
		"<b>👤 Name:</b>  %s\n" +
		"<b>📞 Phone:</b>  %s\n" +
		"<b>🏠 Address:</b>  %s"

	EnterPromoCode   = "🎟 Enter the promo code"
	InvalidPromoCode = "❗️ This doesn't look like a promo code. Check it and try again"
	PromoSaved       = "✅ Promo voucher saved"
	SpecialCode      = "<b>❇️ Your special code for the campaign:</b> <code>%s</code>"
	PromoUsed        = "❗️ <b>This promo code has already been used. Try another one</b>"

	UserPromosCount = "<b>You have entered %d promo codes</b>\n\n"
	PromoLine       = "🔸 <code>%s</code> - promo code: <b>%s</b>\n"
	NoPromos        = "<b>❌ You haven't entered any promo codes yet</b>"

	Help  = "🤖 This bot registers promo codes of the campaign.\n\n/start - start the bot\n/mypromos - your promo codes\n/cancel - cancel the current step\n\nQuestions: @%s"
	Order = "🛒 Ask @%s to place an order."

	Cancelled     = "❎ Cancelled"
	GenericError  = "⚠️ Something went wrong, please try again later"
	JobError      = "⁉️ Error: %s"
	JobBusy       = "⏳ Another reconciliation is already running"
	Hourglass     = "⏳"
	GettingReady  = "📦 Preparing the file..."
	NoData        = "🤷 No data for this month"
	ExportUsage   = "Usage: /export [month year], e.g. /export 3 2025"
	UsersCount    = "👤 <b>Users:</b> %d\n🎟 <b>Promo codes:</b> %d"
	ErasedCount   = "✅ Removed %d records"
	AskBlockPhone = "📞 Send the phone number of the user to block"
	BadPhone      = "❗️ This is not a phone number, try again"
	PhoneBlocked  = "🚫 %s is blocked"

	AskBroadcast  = "✉️ Send the message to broadcast to all users"
	BroadcastDone = "✅ Delivered to %d of %d users"

	ReconcileStarted = "Calculating ..."
	ReconcileDone    = "✅ DONE!\nOld promos relabelled: %d\nPromos numbered in %s: %d\nDate: %s"
	ReconcileEmpty   = "✅ DONE! The ledger is empty"
)
