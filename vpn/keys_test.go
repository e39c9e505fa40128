package vpn

import (
	"errors"
	"testing"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/yllada/lynxsync/common"
)

func TestPublicKeyFor(t *testing.T) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey() error = %v", err)
	}

	got, err := PublicKeyFor("  " + priv.String() + "\n")
	if err != nil {
		t.Fatalf("PublicKeyFor() error = %v", err)
	}
	if want := priv.PublicKey().String(); got != want {
		t.Errorf("PublicKeyFor() = %v, want %v", got, want)
	}
	if !ValidPublicKey(got) {
		t.Errorf("ValidPublicKey(%q) = false", got)
	}
}

func TestParsePrivateKey_Invalid(t *testing.T) {
	for _, input := range []string{"", "not-base64", "c2hvcnQ="} {
		_, err := ParsePrivateKey(input)
		if !errors.Is(err, common.ErrInvalidKey) {
			t.Errorf("ParsePrivateKey(%q) error = %v, want ErrInvalidKey", input, err)
		}
	}
}
