package cache

import "fmt"

// HeaderKey caches a function header by its slug. Headers never change once created.
func HeaderKey(slug string) string {
	return fmt.Sprintf("header:%s", slug)
}

// JobKey caches a finished job snapshot.
func JobKey(jobID int64) string {
	return fmt.Sprintf("job:%d", jobID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
