package loop

import "errors"

// ErrBusy is returned when Submit is called while a turn is running.
var ErrBusy = errors.New("a turn is already in progress")

// InterruptNote is appended to history once per interruption.
const InterruptNote = "User has interrupted the request"
