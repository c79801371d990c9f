package ocr

import "errors"

// ErrBadRequest marks errors caused by the client's request body.
var ErrBadRequest = errors.New("bad request")
