//go:build !linux && !windows

package network

import "net"

// ReuseAddrListenConfig returns the default listen config on platforms
// without a SO_REUSEADDR helper.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
