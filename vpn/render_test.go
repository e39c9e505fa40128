package vpn

import (
	"strings"
	"testing"
)

func TestRenderWGQuick(t *testing.T) {
	peer := BuildPeerConfig(CandidateServer{Hostname: "nl1.nordvpn.com", PublicKey: "srvkey"}, testPolicy())

	out, err := RenderWGQuick(peer, false)
	if err != nil {
		t.Fatalf("RenderWGQuick() error = %v", err)
	}

	for _, want := range []string{
		"[Interface]\n",
		"Address = 10.5.0.2/24\n",
		"PrivateKey = " + testPolicy().PrivateKey + "\n",
		"DNS = 1.1.1.1\n",
		"[Peer]\n",
		"PublicKey = srvkey\n",
		"Endpoint = nl1.nordvpn.com:51820\n",
		"AllowedIPs = 0.0.0.0/0\n",
		"PersistentKeepalive = 20\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered config missing %q:\n%s", want, out)
		}
	}
}

func TestRenderWGQuick_Redacted(t *testing.T) {
	peer := BuildPeerConfig(CandidateServer{Hostname: "nl1.nordvpn.com", PublicKey: "srvkey"}, testPolicy())

	out, _ := RenderWGQuick(peer, true)
	if strings.Contains(out, testPolicy().PrivateKey) {
		t.Error("redacted output contains the private key")
	}
	if !strings.Contains(out, "PrivateKey = <redacted>") {
		t.Error("redacted output missing placeholder")
	}
}

func TestRenderWGQuick_Nil(t *testing.T) {
	if _, err := RenderWGQuick(nil, false); err == nil {
		t.Error("expected error for nil peer config")
	}
}
