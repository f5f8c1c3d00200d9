// Package broadcast fans typed messages out to subscribers.
//
// Two implementations are provided. MemoryBroadcaster serves listeners inside
// one process. RedisBroadcaster publishes JSON-encoded messages on a Redis
// pub/sub channel so every process subscribed to that channel receives them.
//
// Both drop messages for subscribers that do not keep up instead of blocking
// the publisher:
//
//	b := broadcast.NewMemoryBroadcaster[Event](16)
//	defer b.Close()
//
//	sub := b.Subscribe(ctx)
//	defer sub.Close()
//
//	_ = b.Broadcast(ctx, broadcast.Message[Event]{Data: ev})
//
//	for msg := range sub.Receive(ctx) {
//		handle(msg.Data)
//	}
package broadcast
