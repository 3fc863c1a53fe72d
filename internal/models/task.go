package models

import (
	"time"
)

// ProcessingTask is the API view of a queued analysis run.
type ProcessingTask struct {
	ID          string           `json:"id"`
	Status      ProcessingStatus `json:"status"`
	Type        string           `json:"type"`
	Priority    int              `json:"priority"`
	Progress    float64          `json:"progress"`
	Error       string           `json:"error,omitempty"`
	WorkspaceID string           `json:"workspaceId"`
	AnalysisID  string           `json:"analysisId"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt,omitempty"`
}

type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusRunning   ProcessingStatus = "running"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
	StatusCancelled ProcessingStatus = "cancelled"
)
