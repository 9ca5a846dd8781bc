package exception

import "github.com/yanun0323/errors"

var (
	ErrExchangeEmptyResponse = errors.New("exchange: empty response")
	ErrExchangeNoBalance     = errors.New("exchange: no wallet balance available")
	ErrExchangeBadSymbol     = errors.New("exchange: unknown symbol")
)
