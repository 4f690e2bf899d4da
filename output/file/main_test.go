package file

import "time"

const (
	testTimeout = 2 * time.Second
	testTick    = time.Millisecond
)
