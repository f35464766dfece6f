// Package scheduler implements the periodic jobs of the monitoring backend:
// the hourly outdoor weather fetch and the five-minute recommendation
// generation pass. Both run through Runner, which serializes each schedule
// slot with a job lock and records the run in job history.
//
// The Payload is the JSON structure sent by the EventBridge schedule rules to
// the scheduler Lambda; the envmon CLI builds the same payload locally.
package scheduler

import (
	"fmt"
	"time"
)

// TaskType identifies which job a Payload runs.
type TaskType string

const (
	TaskFetchWeather            TaskType = "fetch_weather"
	TaskGenerateRecommendations TaskType = "generate_recommendations"
)

// Tasks lists every TaskType the Runner can dispatch, in schedule order.
func Tasks() []TaskType {
	return []TaskType{TaskFetchWeather, TaskGenerateRecommendations}
}

// Interval returns how often task is scheduled. It is also the width of the
// lock bucket, so at most one run per interval can hold the lock.
func (t TaskType) Interval() time.Duration {
	switch t {
	case TaskFetchWeather:
		return time.Hour
	case TaskGenerateRecommendations:
		return 5 * time.Minute
	}
	return 0
}

// LockID returns the job lock key for task at now, e.g.
// "fetch_weather:2026-10-14T09:00".
func LockID(task TaskType, now time.Time) string {
	bucket := now.UTC()
	if iv := task.Interval(); iv > 0 {
		bucket = bucket.Truncate(iv)
	}
	return fmt.Sprintf("%s:%s", task, bucket.Format("2006-01-02T15:04"))
}

// Payload is the scheduler invocation:
//
//	{
//	  "task": "generate_recommendations",
//	  "reference_time": "2026-10-14T09:05:00Z"  // optional
//	}
type Payload struct {
	Task TaskType `json:"task"`
	// ReferenceTime overrides "now" for manual or backfill runs. If nil,
	// the current UTC time is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
