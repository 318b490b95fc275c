package vault

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"github.com/rustyclaw/core/internal/common/apperr"
)

// identityProvider produces the age identity/recipient pair used to
// seal and open the vault container. Exactly one of keyFileIdentity
// or passwordIdentity backs a given vault, matching its key-file-mode
// vs password-mode split.
type identityProvider interface {
	recipient() (age.Recipient, error)
	identity() (age.Identity, error)
}

// keyFileIdentity loads (or generates, on first use) an X25519
// identity persisted at a sibling key-file path. Grounded on
// filippo.io/age usage in Aureuma-si/tools/si/internal/vault/keys.go.
type keyFileIdentity struct {
	path string
}

func newKeyFileIdentity(path string) *keyFileIdentity {
	return &keyFileIdentity{path: path}
}

func (k *keyFileIdentity) ensure() (*age.X25519Identity, error) {
	if data, err := os.ReadFile(k.path); err == nil {
		id, err := age.ParseX25519Identity(string(bytes.TrimSpace(data)))
		if err != nil {
			return nil, apperr.Wrap(apperr.KindCorruptEnvelope, "vault", "parse key file", err)
		}
		return id, nil
	} else if !os.IsNotExist(err) {
		return nil, apperr.Wrap(apperr.KindInternal, "vault", "read key file", err)
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "vault", "generate key", err)
	}
	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "vault", "create key dir", err)
	}
	if err := os.WriteFile(k.path, []byte(id.String()+"\n"), 0o600); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "vault", "write key file", err)
	}
	return id, nil
}

func (k *keyFileIdentity) recipient() (age.Recipient, error) {
	id, err := k.ensure()
	if err != nil {
		return nil, err
	}
	return id.Recipient(), nil
}

func (k *keyFileIdentity) identity() (age.Identity, error) {
	return k.ensure()
}

// exists reports whether the key file is present on disk, used by
// lock-state detection.
func (k *keyFileIdentity) exists() bool {
	_, err := os.Stat(k.path)
	return err == nil
}

// delete removes the key file, used when switching to password mode.
func (k *keyFileIdentity) delete() error {
	err := os.Remove(k.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// passwordIdentity derives an age scrypt identity/recipient from a
// user-supplied password at call time; nothing is persisted to disk.
type passwordIdentity struct {
	password     string
	workFactor   int
}

func newPasswordIdentity(password string, workFactor int) *passwordIdentity {
	if workFactor <= 0 {
		workFactor = 18
	}
	return &passwordIdentity{password: password, workFactor: workFactor}
}

func (p *passwordIdentity) recipient() (age.Recipient, error) {
	r, err := age.NewScryptRecipient(p.password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "vault", "derive recipient", err)
	}
	r.SetWorkFactor(p.workFactor)
	return r, nil
}

func (p *passwordIdentity) identity() (age.Identity, error) {
	id, err := age.NewScryptIdentity(p.password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "vault", "derive identity", err)
	}
	return id, nil
}

// seal encrypts plaintext under the given recipient and returns a
// base64 blob suitable for writing to the vault file.
func seal(plaintext []byte, recip age.Recipient) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recip)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "vault", "open encrypt stream", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "vault", "write ciphertext", err)
	}
	if err := w.Close(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "vault", "close ciphertext", err)
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(buf.Len()))
	base64.StdEncoding.Encode(out, buf.Bytes())
	return out, nil
}

// open decrypts a seal()-produced blob under the given identity.
// A decrypt failure (wrong password or wrong key) is reported as
// WrongCredential only after this real attempt, never from a
// fast-path metadata check that could misclassify a corrupt
// container as a bad credential.
func open(blob []byte, id age.Identity) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(blob)))
	n, err := base64.StdEncoding.Decode(raw, blob)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCorruptEnvelope, "vault", "decode container", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw[:n]), id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindWrongCredential, "vault", "decrypt container", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindWrongCredential, "vault", "read plaintext", err)
	}
	return plaintext, nil
}

// randomBytes returns n cryptographically random bytes, used to
// generate the TOTP secret.
func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}
