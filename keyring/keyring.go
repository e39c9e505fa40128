// Package keyring provides secure storage for the WireGuard private key.
// It uses the system keyring when available, falling back to
// encrypted local file storage when not.
package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/hkdf"

	"github.com/yllada/lynxsync/common"
)

const (
	// serviceName is the identifier used in the system keyring.
	serviceName = "lynxsync"
	// PrivateKeyAccount is the entry holding the WireGuard private key.
	PrivateKeyAccount = "wireguard-private-key"

	credentialsFile = ".credentials"
	hkdfInfo        = "lynxsync credential store v1"
)

// Common errors returned by keyring operations.
var (
	ErrNotFound    = errors.New("credential not found")
	ErrAccess      = errors.New("keyring access denied")
	ErrUnavailable = errors.New("keyring service unavailable")
)

// Storage backend state
var (
	initOnce        sync.Once
	useLocalStorage bool
	localStoreMu    sync.RWMutex
	localStore      map[string]string
	localStoreFile  string
	encryptionKey   []byte
)

// initStorage picks the backend on first use.
func initStorage() {
	initOnce.Do(func() {
		testKey := serviceName + "-probe"
		if err := keyring.Set(serviceName, testKey, "probe"); err == nil {
			_ = keyring.Delete(serviceName, testKey)
			useLocalStorage = false
			return
		}
		common.LogDebug("System keyring unavailable, using encrypted file storage")
		dir, err := common.GetConfigDir()
		if err != nil {
			dir = os.TempDir()
		}
		initLocalStorage(dir)
	})
}

func initLocalStorage(dir string) {
	localStoreMu.Lock()
	defer localStoreMu.Unlock()
	useLocalStorage = true
	localStoreFile = filepath.Join(dir, credentialsFile)
	encryptionKey = deriveKey()
	localStore = make(map[string]string)
	loadLocalStore()
}

// deriveKey derives the file encryption key from machine-specific data.
func deriveKey() []byte {
	hostname, _ := os.Hostname()
	secret := fmt.Sprintf("%s-%s-%d", hostname, getMachineID(), os.Getuid())
	r := hkdf.New(sha256.New, []byte(secret), []byte(serviceName), []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		sum := sha256.Sum256([]byte(secret))
		return sum[:]
	}
	return key
}

func getMachineID() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return "default-machine-id"
}

// loadLocalStore reads the credential file. Callers hold localStoreMu.
func loadLocalStore() {
	data, err := os.ReadFile(localStoreFile)
	if err != nil {
		return
	}

	decrypted, err := decrypt(data)
	if err != nil {
		common.LogWarn("Ignoring unreadable credential file %s: %v", localStoreFile, err)
		return
	}

	if err := json.Unmarshal(decrypted, &localStore); err != nil {
		common.LogWarn("Ignoring malformed credential file %s: %v", localStoreFile, err)
	}
}

func saveLocalStore() error {
	localStoreMu.RLock()
	data, err := json.Marshal(localStore)
	localStoreMu.RUnlock()
	if err != nil {
		return err
	}

	encrypted, err := encrypt(data)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(localStoreFile), 0700); err != nil {
		return err
	}
	return common.WriteFileAtomic(localStoreFile, encrypted, 0600)
}

func encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return []byte(base64.StdEncoding.EncodeToString(ciphertext)), nil
}

func decrypt(data []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// Store saves a secret under account.
func Store(account, secret string) error {
	if account == "" {
		return errors.New("account cannot be empty")
	}
	if secret == "" {
		return errors.New("secret cannot be empty")
	}
	initStorage()

	if !useLocalStorage {
		err := keyring.Set(serviceName, account, secret)
		if err == nil {
			return nil
		}
		common.LogWarn("System keyring rejected %s, falling back to file storage: %v", account, err)
		dir, derr := common.GetConfigDir()
		if derr != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		initLocalStorage(dir)
	}

	localStoreMu.Lock()
	localStore[account] = secret
	localStoreMu.Unlock()
	return saveLocalStore()
}

// Get retrieves the secret stored under account.
func Get(account string) (string, error) {
	if account == "" {
		return "", errors.New("account cannot be empty")
	}
	initStorage()

	if !useLocalStorage {
		secret, err := keyring.Get(serviceName, account)
		switch {
		case err == nil:
			return secret, nil
		case errors.Is(err, keyring.ErrNotFound):
			return "", ErrNotFound
		default:
			return "", fmt.Errorf("%w: %v", ErrAccess, err)
		}
	}

	localStoreMu.RLock()
	secret, exists := localStore[account]
	localStoreMu.RUnlock()
	if !exists {
		return "", ErrNotFound
	}
	return secret, nil
}

// Delete removes the secret stored under account.
func Delete(account string) error {
	if account == "" {
		return errors.New("account cannot be empty")
	}
	initStorage()

	if !useLocalStorage {
		if err := keyring.Delete(serviceName, account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrAccess, err)
		}
		return nil
	}

	localStoreMu.Lock()
	delete(localStore, account)
	localStoreMu.Unlock()
	return saveLocalStore()
}

// Exists checks if a secret is stored under account.
func Exists(account string) bool {
	_, err := Get(account)
	return err == nil
}

// StorePrivateKey saves the WireGuard private key.
func StorePrivateKey(key string) error {
	return Store(PrivateKeyAccount, strings.TrimSpace(key))
}

// PrivateKey returns the stored WireGuard private key.
func PrivateKey() (string, error) {
	return Get(PrivateKeyAccount)
}

// ResolvePrivateKey returns configured when set and the keyring entry
// otherwise.
func ResolvePrivateKey(configured string) (string, error) {
	if key := strings.TrimSpace(configured); key != "" {
		return key, nil
	}
	key, err := PrivateKey()
	if err != nil {
		return "", fmt.Errorf("no privateKey configured and keyring lookup failed: %w", err)
	}
	return key, nil
}
