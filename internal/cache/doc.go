// Package cache holds the TTL-gated cache used by every resource.
//
// Entries carry the wall-clock time they were captured, in milliseconds, and
// a write-sequence number. An entry is fresh while now - Timestamp < ttl; a
// ttl of zero is always stale.
//
// Reads that go to the backend take a Ticket before the network call and
// store their result with SetIfCurrent. Any reconciliation (Update), explicit
// write (Set) or invalidation between the ticket and the store advances the
// sequence, and the late read is rejected so it cannot overwrite the newer
// state.
//
// A Cache can write through to a types.KVStore. Durable entries are the same
// entries the memory map holds, so they are reconciled and invalidated along
// with it. Hydrate loads them back at start-up.
//
//	c := cache.New[[]types.Row](cache.WithClock(clk))
//	t := c.Ticket()
//	rows, err := backend.Select(ctx, table, q)
//	if err == nil {
//	    c.SetIfCurrent(key, rows, t)
//	}
package cache
