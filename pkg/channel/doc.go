// Package channel defines the delivery adapters a notification can be sent
// through and the error classification shared by all of them.
//
// An Adapter performs at most one external call per Send and never retries.
// Every failure it returns is classified at the boundary: errors matching
// ErrTransient may succeed if tried again later, errors matching ErrPermanent
// never will. Context cancellation is returned as is.
//
// Three adapters are provided:
//
//   - EmailAdapter wraps an email.EmailSender (Postmark, SMTP, dev).
//   - ChatBotAdapter posts to the Telegram Bot API sendMessage method.
//   - WebhookAdapter POSTs a signed JSON envelope to the recipient URL.
package channel
