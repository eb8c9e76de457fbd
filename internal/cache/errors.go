package cache

import "errors"

var ErrStore = errors.New("cache store error")
