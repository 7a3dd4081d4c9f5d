package workflow

import "errors"

var (
	ErrInvalidGraph            = errors.New("invalid workflow graph")
	ErrInvalidTitle            = errors.New("invalid tool name")
	ErrRunningHubNotConfigured = errors.New("runninghub workflow reference requires a configured RunningHub client")
	ErrUnsupportedSource       = errors.New("unsupported workflow source")
)
