package feishu

import "errors"

var (
	ErrRequestFailed   = errors.New("feishu: http request failed")
	ErrResponseInvalid = errors.New("feishu: invalid response")
	ErrAPIError        = errors.New("feishu: api error")
)
