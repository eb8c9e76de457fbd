package image

import "errors"

var ErrPackaging = errors.New("packaging failed")
