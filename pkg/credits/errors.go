package credits

import "errors"

var (
	ErrNegativeInput = errors.New("credit amounts must not be negative")
	ErrNotAnUpgrade  = errors.New("new tier allowance must exceed previous tier allowance")
)
