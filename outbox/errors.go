package outbox

import "errors"

var ErrNotFound = errors.New("outbox task not found")
