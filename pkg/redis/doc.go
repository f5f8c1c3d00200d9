// Package redis connects to Redis through go-redis for the parts of the
// dispatcher that are shared between processes: the dedup guard and the
// delivery event fan-out.
//
// Config is populated from REDIS_* environment variables. An empty REDIS_URL
// disables Redis and the service falls back to in-process implementations.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	guard := dedup.NewRedisGuard(client, dedup.WithPrefix(cfg.DedupPrefix))
//	events, err := broadcast.NewRedisBroadcaster[notifications.DeliveryEvent](client, cfg.EventsChannel)
//
// Healthcheck returns a probe for the readiness endpoint. Errors wrap the
// go-redis cause with errors.Join so the sentinels here match with errors.Is.
package redis
