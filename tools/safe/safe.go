package safe

import (
	"QChat/logger"
)

// Go starts a goroutine that recovers from panics so a misbehaving
// background task cannot take down the gateway process.
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[%s] panic recovered: %v", name, r)
			}
		}()
		f()
	}()
}
