// Package notifications dispatches rendered messages to external channels
// (email, chat bot, webhook) and tracks each one in a delivery ledger.
//
// A Dispatcher owns one queue, one worker pool and one circuit breaker per
// registered channel. Submit validates a Request, applies content-based
// deduplication and records it as queued without touching the network.
// Workers then move the record through its lifecycle:
//
//	queued -> sending -> delivered
//	               \-> retrying -> sending ...
//	               \-> failed
//	queued -> duplicate_suppressed
//
// Transient failures are retried with backoff up to the policy's attempt
// cap, permanent failures fail at once, and an open breaker fails fast
// without reaching the provider. Terminal transitions are published as
// DeliveryEvent values through a Publisher.
//
// # Usage
//
//	mail, _ := channel.NewEmailAdapter(sender)
//	d, err := notifications.New(
//	    notifications.WithAdapter(mail),
//	    notifications.WithStorage(store),
//	    notifications.WithLogger(log),
//	)
//	if err != nil {
//	    return err
//	}
//	if _, err := d.Recover(ctx); err != nil {
//	    log.Warn("recover pending notifications", "error", err)
//	}
//	g.Go(d.Run(ctx))
//
//	rec, err := d.Submit(ctx, notifications.Request{
//	    Channel:   channel.KindEmail,
//	    Recipient: "user@example.com",
//	    Title:     "Order shipped",
//	    Body:      "Your order is on its way.",
//	})
//
// # Storage
//
// MemoryStorage keeps the ledger in process. The pgstore subpackage persists
// it in PostgreSQL so Recover can resume pending work after a restart.
// With WithSweepInterval set, a running dispatcher also reschedules records
// that sat in sending or past their due time for too long. Stats reports
// counts per state and channel.
package notifications
