// Package redis wraps go-redis with the service's logging and configuration
// conventions and a lifecycle component.
//
// TypedStore stores JSON values under a key prefix. The job store and the
// transcript cache persist through it when redis is enabled:
//
//	store := redis.NewTypedStore[jobs.Job](client, "mediascribe:job")
//	err := store.Save(ctx, job.ID, job, 0)
package redis
