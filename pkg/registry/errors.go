package registry

import "errors"

// ErrInvalidSession is returned by AddSession for a record that fails validation.
var ErrInvalidSession = errors.New("registry: invalid session record")
