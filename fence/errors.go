package fence

import "errors"

var errMismatchedNprocs = errors.New("fence: nprocs mismatch with existing fence")
