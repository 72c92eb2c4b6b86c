// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"strconv"
	"strings"
)

// parseUDPFrameDevice parses a span's "device" config field for the
// udpframe driver: "<listenPort>@<peerHost>:<peerPort>".
func parseUDPFrameDevice(device string) (listenPort int, peerHost string, peerPort int, err error) {
	at := strings.SplitN(device, "@", 2)
	if len(at) != 2 {
		return 0, "", 0, fmt.Errorf("udpframe device %q: want <listenPort>@<peerHost>:<peerPort>", device)
	}
	listenPort, err = strconv.Atoi(at[0])
	if err != nil {
		return 0, "", 0, fmt.Errorf("udpframe device %q: invalid listen port: %w", device, err)
	}
	hostPort := strings.SplitN(at[1], ":", 2)
	if len(hostPort) != 2 {
		return 0, "", 0, fmt.Errorf("udpframe device %q: want <peerHost>:<peerPort>", device)
	}
	peerPort, err = strconv.Atoi(hostPort[1])
	if err != nil {
		return 0, "", 0, fmt.Errorf("udpframe device %q: invalid peer port: %w", device, err)
	}
	return listenPort, hostPort[0], peerPort, nil
}
