// Package dedupe provides request idempotency using a time-based cache.
//
// A handler reserves the client's key, does the work, then either completes
// the key with its result or releases it on failure:
//
//	prev, status := cache.Reserve(key)
//	switch status {
//	case dedupe.StatusDone:    // replay prev
//	case dedupe.StatusPending: // another request with this key is in flight
//	case dedupe.StatusReserved:
//		res, err := work()
//		if err != nil {
//			cache.Release(key)
//			return err
//		}
//		cache.Complete(key, res)
//	}
package dedupe
