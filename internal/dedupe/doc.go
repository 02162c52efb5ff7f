// Package dedupe provides a small TTL cache used for idempotent request replay.
//
// A POS terminal that loses its connection mid-request retries the same
// create with the same Idempotency-Key. The API stores the first response
// under that key and serves it again instead of creating a second record.
//
//	cache := dedupe.New[Response](10*time.Minute, 1024, time.Minute)
//	defer cache.Close()
//
//	if resp, ok := cache.Get(key); ok {
//	    return resp
//	}
//	resp := handle()
//	cache.Put(key, resp)
package dedupe
