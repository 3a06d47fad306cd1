package cache

import "fmt"

// ResultKey is the cache key for a job's normalized validation results.
// Results are the only thing this cache holds; the key space is job-id keyed
// by construction.
func ResultKey(jobID string) string {
	return fmt.Sprintf("results:%s", jobID)
}
