package tasks

import (
	"fmt"
	"math/rand/v2"
	"time"
)

type TaskType string

const (
	TaskTypePollProvider     TaskType = "poll_provider"
	TaskTypeSweepSubscribers TaskType = "sweep_subscribers"
	TaskTypeSyncProviders    TaskType = "sync_providers"
)

type Task struct {
	ID        string
	Type      TaskType
	StartedAt *time.Time
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func NewTask(taskType TaskType) Task {
	uniqueID := fmt.Sprintf("%d-%d", time.Now().UnixNano(), rand.IntN(10000))

	return Task{
		ID:   uniqueID,
		Type: taskType,
	}
}
