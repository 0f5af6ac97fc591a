package rtc

import (
	"fmt"
	"net"
	"time"

	"github.com/dkeye/Desk/internal/config"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const fallbackIP = "127.0.0.1"

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// NewWebRTCConfig turns configured ICE servers into a pion configuration.
// Every URL must parse as a stun/turn URI.
func NewWebRTCConfig(servers []config.ICEServer) (webrtc.Configuration, error) {
	if len(servers) == 0 {
		return DefaultWebRTCConfig(), nil
	}
	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, s := range servers {
		if len(s.URLs) == 0 {
			return webrtc.Configuration{}, fmt.Errorf("ice_servers[%d]: no urls", i)
		}
		for _, raw := range s.URLs {
			if _, err := stun.ParseURI(raw); err != nil {
				return webrtc.Configuration{}, fmt.Errorf("ice_servers[%d]: %q: %w", i, raw, err)
			}
		}
		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, srv)
	}
	return webrtc.Configuration{ICEServers: out}, nil
}

type ConnectionInfo struct {
	LocalIP    string             `json:"localIp"`
	ICEServers []webrtc.ICEServer `json:"iceServers"`
	WSProtocol string             `json:"wsProtocol"`
	ServerTime time.Time          `json:"serverTime"`
}

func NewConnectionInfo(cfg webrtc.Configuration, secure bool, now time.Time) ConnectionInfo {
	proto := "ws"
	if secure {
		proto = "wss"
	}
	return ConnectionInfo{
		LocalIP:    LocalIP(),
		ICEServers: cfg.ICEServers,
		WSProtocol: proto,
		ServerTime: now,
	}
}

// LocalIP returns the address of the interface used for outbound traffic.
// No packet is sent; dialing UDP only selects a route.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		log.Warn().Err(err).Str("module", "rtc").Msg("local ip lookup")
		return fallbackIP
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return fallbackIP
	}
	return addr.IP.String()
}
