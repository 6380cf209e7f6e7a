// Package scheduler triggers dispatch cycles and summaries on cron
// schedules in a configured timezone. A run that is still in progress
// when its next trigger fires is skipped, never overlapped.
package scheduler
