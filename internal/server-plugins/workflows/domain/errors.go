package domain

import "errors"

var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrInvalidWorkflowID = errors.New("workflow_id must be numeric")
)
