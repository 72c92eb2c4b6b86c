// SPDX-License-Identifier: Apache-2.0

package tdm

import (
	"net"

	"go.uber.org/zap"

	"github.com/tdmsip/gateway/internal/util"
	"github.com/tdmsip/gateway/logger"
)

// UDPFrameConfig parameterizes a UDPFrameDriver: one UDP datagram carries
// exactly one LAPD frame, addressed to a fixed peer (spec's "device
// address" span config field).
type UDPFrameConfig struct {
	ListenPort int
	PeerAddr   string
	PeerPort   int
}

// UDPFrameDriver is the production Driver: it maps a physical D-channel
// onto UDP datagrams, one frame per datagram, to a fixed peer. Grounded on
// the pack's UDP socket-handling style (bind, blocking read loop,
// datagram-per-message) generalized from audio-frame transport to LAPD
// frame transport.
type UDPFrameDriver struct {
	conn    *net.UDPConn
	peer    *net.UDPAddr
	log     *zap.SugaredLogger
	onFrame func([]byte)
	done    chan struct{}
}

// NewUDPFrameDriver opens the listening socket and starts the receive loop.
// onFrame is called once per datagram with its payload; it must not block.
func NewUDPFrameDriver(cfg UDPFrameConfig, onFrame func([]byte), log *zap.SugaredLogger) (*UDPFrameDriver, error) {
	if log == nil {
		log = logger.TdmLog
	}
	local := &net.UDPAddr{IP: net.IPv4zero, Port: cfg.ListenPort}
	conn, err := net.ListenUDP("udp4", local)
	if err != nil {
		return nil, &DriverError{"open udp frame driver: " + err.Error()}
	}
	peer := &net.UDPAddr{IP: net.ParseIP(cfg.PeerAddr), Port: cfg.PeerPort}
	if peer.IP == nil {
		conn.Close()
		return nil, &DriverError{"invalid peer address " + cfg.PeerAddr}
	}

	d := &UDPFrameDriver{conn: conn, peer: peer, log: log, onFrame: onFrame, done: make(chan struct{})}
	go d.recvLoop()
	return d, nil
}

func (d *UDPFrameDriver) recvLoop() {
	defer util.RecoverWithLog(d.log, "udpframe recv loop")
	buf := make([]byte, 4096)
	for {
		select {
		case <-d.done:
			return
		default:
		}
		n, _, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-d.done:
				return
			default:
				d.log.Debugw("udp frame read error", "error", err)
				continue
			}
		}
		if n == 0 || d.onFrame == nil {
			continue
		}
		frame := append([]byte(nil), buf[:n]...)
		d.onFrame(frame)
	}
}

func (d *UDPFrameDriver) Send(octets []byte) error {
	_, err := d.conn.WriteToUDP(octets, d.peer)
	if err != nil {
		return &DriverError{"udp frame send: " + err.Error()}
	}
	return nil
}

func (d *UDPFrameDriver) Close() error {
	close(d.done)
	return d.conn.Close()
}
