package vpn

import (
	"fmt"
	"strings"
)

// RenderWGQuick produces a wg-quick compatible config for a persisted peer
// config, handy for bringing a profile up by hand.
func RenderWGQuick(peer *PeerConfig, redactKey bool) (string, error) {
	if peer == nil {
		return "", fmt.Errorf("peer config is nil")
	}
	var b strings.Builder
	b.WriteString("[Interface]\n")
	if len(peer.Addresses) > 0 {
		fmt.Fprintf(&b, "Address = %s\n", strings.Join(peer.Addresses, ", "))
	}
	if peer.PrivateKey != "" {
		key := peer.PrivateKey
		if redactKey {
			key = "<redacted>"
		}
		fmt.Fprintf(&b, "PrivateKey = %s\n", key)
	}
	if len(peer.DNS) > 0 {
		fmt.Fprintf(&b, "DNS = %s\n", strings.Join(peer.DNS, ", "))
	}
	b.WriteString("\n")

	for _, p := range peer.Peers {
		b.WriteString("[Peer]\n")
		fmt.Fprintf(&b, "PublicKey = %s\n", p.PublicKey)
		if p.Endpoint != "" {
			fmt.Fprintf(&b, "Endpoint = %s\n", p.Endpoint)
		}
		if len(p.AllowedIPs) > 0 {
			fmt.Fprintf(&b, "AllowedIPs = %s\n", strings.Join(p.AllowedIPs, ", "))
		}
		if p.PersistentKeepalive != "" && p.PersistentKeepalive != "0" {
			fmt.Fprintf(&b, "PersistentKeepalive = %s\n", p.PersistentKeepalive)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
