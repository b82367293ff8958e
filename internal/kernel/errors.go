package kernel

import "errors"

// ErrDisposed is returned by Dispatch after Close.
var ErrDisposed = errors.New("kernel: engine disposed")
