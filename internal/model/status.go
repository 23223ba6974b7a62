package model

// Human-readable status labels for a provisioning request.
const (
	StatusPending      = "pending"
	StatusProvisioning = "provisioning"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
)
