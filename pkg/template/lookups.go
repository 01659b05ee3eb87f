package template

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"math/big"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"

	"github.com/nikolalohinski/gonja/v2/exec"
	"golang.org/x/crypto/pbkdf2"
)

// LookupFunc is a lookup plugin: a global callable available inside every
// template expression.
type LookupFunc func(params *exec.VarArgs) *exec.Value

// RegisterLookup installs a lookup under the given name. Packages that own a
// lookup's implementation (the find module, for instance) call this from
// their init.
func RegisterLookup(name string, fn LookupFunc) {
	tplEnv.Context.Set(name, fn)
}

func registerBuiltinLookups() {
	RegisterLookup("env", lookupEnv)
	RegisterLookup("file", lookupFile)
	RegisterLookup("pipe", lookupPipe)
	RegisterLookup("password", lookupPassword)
	RegisterLookup("vault", lookupVault)
	RegisterLookup("passwordstore", lookupPasswordstore)
}

func lookupEnv(params *exec.VarArgs) *exec.Value {
	name, ok := argAt(params, 0)
	if !ok {
		return errValue("env: expected a variable name")
	}
	if v, found := os.LookupEnv(name.String()); found {
		return exec.AsValue(v)
	}
	if def, ok := argAt(params, 1); ok {
		return def
	}
	return errValue("env: %s is not set", name.String())
}

func lookupFile(params *exec.VarArgs) *exec.Value {
	path, ok := argAt(params, 0)
	if !ok {
		return errValue("file: expected a path")
	}
	raw, err := os.ReadFile(path.String())
	if err != nil {
		return errValue("file: %v", err)
	}
	content := string(raw)
	rstrip := true
	if v, ok := params.KwArgs["rstrip"]; ok {
		rstrip = v.Bool()
	}
	if rstrip {
		content = strings.TrimRight(content, "\r\n")
	}
	return exec.AsValue(content)
}

func lookupPipe(params *exec.VarArgs) *exec.Value {
	cmdArg, ok := argAt(params, 0)
	if !ok {
		return errValue("pipe: expected a command")
	}
	out, err := osexec.Command("/bin/sh", "-c", cmdArg.String()).Output()
	if err != nil {
		return errValue("pipe: %v", err)
	}
	return exec.AsValue(strings.TrimRight(string(out), "\n"))
}

const passwordChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// lookupPassword implements a path-backed password store: the first use
// generates a password and writes it to the path; every later use returns
// the stored value.
func lookupPassword(params *exec.VarArgs) *exec.Value {
	pathArg, ok := argAt(params, 0)
	if !ok {
		return errValue("password: expected a path")
	}
	path := pathArg.String()
	length := 20
	if v, ok := params.KwArgs["length"]; ok {
		length = v.Integer()
	}

	if raw, err := os.ReadFile(path); err == nil {
		line, _, _ := strings.Cut(string(raw), "\n")
		return exec.AsValue(line)
	}

	pw := make([]byte, length)
	for i := range pw {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordChars))))
		if err != nil {
			return errValue("password: %v", err)
		}
		pw[i] = passwordChars[n.Int64()]
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errValue("password: %v", err)
	}
	if err := os.WriteFile(path, append(pw, '\n'), 0o600); err != nil {
		return errValue("password: %v", err)
	}
	return exec.AsValue(string(pw))
}

// VaultPasswordEnv holds the key for the vault lookup.
const VaultPasswordEnv = "RASH_VAULT_PASSWORD"

const vaultHeader = "$RASH_VAULT;1.0;AES256"

const (
	vaultSaltLen  = 32
	vaultHMACLen  = 32
	vaultKDFIters = 10000
)

// lookupVault decrypts an envelope produced by EncryptVault with the key
// from RASH_VAULT_PASSWORD.
func lookupVault(params *exec.VarArgs) *exec.Value {
	textArg, ok := argAt(params, 0)
	if !ok {
		return errValue("vault: expected vault text")
	}
	password := os.Getenv(VaultPasswordEnv)
	if password == "" {
		return errValue("vault: %s is not set", VaultPasswordEnv)
	}
	plain, err := DecryptVault(textArg.String(), password)
	if err != nil {
		return errValue("vault: %v", err)
	}
	return exec.AsValue(plain)
}

// DecryptVault opens a vault envelope: a header line followed by the base64
// of salt, HMAC and ciphertext. Keys derive via PBKDF2-HMAC-SHA256.
func DecryptVault(envelope, password string) (string, error) {
	header, body, found := strings.Cut(strings.TrimSpace(envelope), "\n")
	if !found || strings.TrimSpace(header) != vaultHeader {
		return "", errVaultFormat
	}
	raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(body), ""))
	if err != nil {
		return "", errVaultFormat
	}
	if len(raw) < vaultSaltLen+vaultHMACLen {
		return "", errVaultFormat
	}
	salt := raw[:vaultSaltLen]
	mac := raw[vaultSaltLen : vaultSaltLen+vaultHMACLen]
	ct := raw[vaultSaltLen+vaultHMACLen:]

	cipherKey, hmacKey, iv := deriveVaultKeys(password, salt)
	check := hmac.New(sha256.New, hmacKey)
	check.Write(ct)
	if !hmac.Equal(mac, check.Sum(nil)) {
		return "", errVaultMAC
	}

	block, err := aes.NewCipher(cipherKey)
	if err != nil {
		return "", err
	}
	plain := make([]byte, len(ct))
	cipher.NewCTR(block, iv).XORKeyStream(plain, ct)
	return string(plain), nil
}

// EncryptVault seals plaintext into a vault envelope. Exposed for tests and
// for operators preparing secrets.
func EncryptVault(plain, password string) (string, error) {
	salt := make([]byte, vaultSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	cipherKey, hmacKey, iv := deriveVaultKeys(password, salt)

	block, err := aes.NewCipher(cipherKey)
	if err != nil {
		return "", err
	}
	ct := make([]byte, len(plain))
	cipher.NewCTR(block, iv).XORKeyStream(ct, []byte(plain))

	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(ct)

	raw := append(append(salt, mac.Sum(nil)...), ct...)
	return vaultHeader + "\n" + base64.StdEncoding.EncodeToString(raw), nil
}

func deriveVaultKeys(password string, salt []byte) (cipherKey, hmacKey, iv []byte) {
	derived := pbkdf2.Key([]byte(password), salt, vaultKDFIters, 80, sha256.New)
	return derived[:32], derived[32:64], derived[64:80]
}

var (
	errVaultFormat = valueError("invalid vault envelope")
	errVaultMAC    = valueError("vault HMAC verification failed (wrong password?)")
)

type valueError string

func (e valueError) Error() string { return string(e) }

func lookupPasswordstore(params *exec.VarArgs) *exec.Value {
	nameArg, ok := argAt(params, 0)
	if !ok {
		return errValue("passwordstore: expected an entry name")
	}
	out, err := osexec.Command("pass", "show", nameArg.String()).Output()
	if err != nil {
		return errValue("passwordstore: %v", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return exec.AsValue(line)
}
