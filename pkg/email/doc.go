// Package email sends transactional email through Postmark, an SMTP relay or,
// for local work, a directory on disk.
//
// Every transport implements EmailSender. Failures are returned as *SendError
// carrying the provider's code and whether the failure is temporary, so callers
// can decide between retrying and giving up without knowing the provider:
//
//	err := sender.SendEmail(ctx, email.SendEmailParams{
//	    SendTo:   "user@example.com",
//	    Subject:  "Your report is ready",
//	    BodyHTML: html,
//	})
//	if email.IsTemporary(err) {
//	    // try again later
//	}
//
// The bundled transports also implement TrackedSender, which returns the
// provider's message id. New picks a transport from Config.Provider.
package email
