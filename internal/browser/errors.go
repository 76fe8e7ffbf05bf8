package browser

import "errors"

var (
	// ErrUnknownWaitPolicy is returned for wait policies other than
	// domcontentloaded, load and networkidle.
	ErrUnknownWaitPolicy = errors.New("unknown wait policy: use domcontentloaded, load or networkidle")

	// ErrUnknownKey is returned by PressKey for keys it cannot map.
	ErrUnknownKey = errors.New("unknown key")

	// ErrClosed is returned when a closed session is used.
	ErrClosed = errors.New("browser session is closed")
)
