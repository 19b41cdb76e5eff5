//go:build !linux

package kernel

import (
	"errors"
	"runtime"
	"time"
)

var errUnsupported = errors.New("not supported on " + runtime.GOOS)

func readRing() ([]byte, error) {
	return nil, errUnsupported
}

func bootTime() (time.Time, error) {
	return hostBootTime()
}

func openKmsg(Options) (Source, error) {
	return nil, unavailable("/dev/kmsg", errUnsupported)
}
