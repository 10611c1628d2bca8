package sweep

import "errors"

// ErrConfiguration is returned when a Variable or Suite cannot be
// constructed from its declaration.
var ErrConfiguration = errors.New("invalid sweep configuration")
