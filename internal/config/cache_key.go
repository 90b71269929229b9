package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptStateKey returns the cache key for an attempt's resume snapshot.
func (r *CacheKeyStruct) AttemptStateKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:state", attemptID)
}

// AttemptAnswersKey returns the cache key for an attempt's answer hash.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptReloadsKey returns the cache key for an attempt's reload counter.
func (r *CacheKeyStruct) AttemptReloadsKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:reloads", attemptID)
}

// StudentActiveAttemptKey returns the cache key mapping a student to their
// currently live attempt.
func (r *CacheKeyStruct) StudentActiveAttemptKey(studentID string) string {
	return fmt.Sprintf("student:%s:active_attempt", studentID)
}

// AttemptEventsChannel returns the Redis PubSub channel name for an
// attempt's proctoring feed.
func (r *CacheKeyStruct) AttemptEventsChannel(attemptID string) string {
	return fmt.Sprintf("attempt:%s:events", attemptID)
}

var CacheKey = NewCacheKeyStruct()
