//go:build !giouring
// +build !giouring

package router

import "fmt"

// newFrameIO is available when built with -tags giouring; without the
// tag it always fails, so a platform configured with the wire enabled
// does not start. With the wire disabled, internal/router.Router logs
// and drops remote-bound messages.
func newFrameIO(cfg SocketConfig) (FrameIO, error) {
	return nil, fmt.Errorf("giouring not enabled; build with -tags giouring")
}
