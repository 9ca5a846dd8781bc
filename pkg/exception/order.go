package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderQueueFull       = errors.New("order: queue full")
	ErrOrderInvalidSignal   = errors.New("order: invalid signal")
	ErrNoOpposingPosition   = errors.New("order: no opposing position to close")
	ErrInsufficientBalance  = errors.New("order: insufficient balance")
	ErrUnsupportedExecution = errors.New("order: unsupported execution type")
)
