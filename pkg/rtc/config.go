package rtc

import "github.com/pion/webrtc/v3"

// ICE servers for NAT traversal
var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
	{URLs: []string{"stun:stun2.l.google.com:19302"}},
}

// ICEConfig holds ICE server configuration
type ICEConfig struct {
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// buildConfiguration assembles the webrtc configuration from an ICEConfig.
func buildConfiguration(cfg ICEConfig) webrtc.Configuration {
	iceServers := make([]webrtc.ICEServer, 0)

	if !cfg.ForceRelay {
		iceServers = append(iceServers, defaultICEServers...)
	}

	if cfg.TURNServer != "" {
		turnServer := webrtc.ICEServer{
			URLs: []string{cfg.TURNServer},
		}
		if cfg.TURNUser != "" {
			turnServer.Username = cfg.TURNUser
			turnServer.Credential = cfg.TURNPass
			turnServer.CredentialType = webrtc.ICECredentialTypePassword
		}
		iceServers = append(iceServers, turnServer)
	}

	iceTransportPolicy := webrtc.ICETransportPolicyAll
	if cfg.ForceRelay {
		iceTransportPolicy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: iceTransportPolicy,
	}
}
