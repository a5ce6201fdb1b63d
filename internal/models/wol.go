package models

import "time"

// WakeEvent records one fired wake decision.
type WakeEvent struct {
	Index  int
	Target Target
	Mode   Mode
	At     time.Time
	Error  error // send failure, if any
}
