package governor

import "errors"

// ErrQuiescent is returned when a background submission is refused because
// the governor is quiescent. User-facing paths get the notice instead.
var ErrQuiescent = errors.New("governor is quiescent")
