package exception

import "github.com/yanun0323/errors"

var (
	ErrStateNotFound   = errors.New("storage: state not found")
	ErrHistoryTooShort = errors.New("storage: insufficient kline history")
)
