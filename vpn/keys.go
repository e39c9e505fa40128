package vpn

import (
	"fmt"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/yllada/lynxsync/common"
)

// ParsePrivateKey validates a base64 WireGuard private key and returns it
// in canonical form.
func ParsePrivateKey(s string) (string, error) {
	key, err := wgtypes.ParseKey(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidKey, err)
	}
	return key.String(), nil
}

// PublicKeyFor derives the public key of a private key.
func PublicKeyFor(privateKey string) (string, error) {
	key, err := wgtypes.ParseKey(strings.TrimSpace(privateKey))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidKey, err)
	}
	return key.PublicKey().String(), nil
}

// ValidPublicKey reports whether s decodes to a 32-byte WireGuard key.
func ValidPublicKey(s string) bool {
	_, err := wgtypes.ParseKey(s)
	return err == nil
}
