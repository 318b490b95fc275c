package vault

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rustyclaw/core/internal/common/apperr"
)

// container is the flat key/value store sealed as a single age
// payload. Two parallel key families share this map: `cred:<name>`
// envelopes and `val:<name>[:suffix]` payloads, plus the reserved
// `browser_store` cookie-jar blob and `__` prefixed internal keys.
type container map[string][]byte

func newContainer() container {
	return make(container)
}

func (c container) marshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]byte(c))
}

func unmarshalContainer(data []byte) (container, error) {
	var c container
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, apperr.Wrap(apperr.KindCorruptEnvelope, "vault", "unmarshal container", err)
	}
	if c == nil {
		c = newContainer()
	}
	return c, nil
}

// fileStore persists a container to disk encrypted under an
// identityProvider, atomically replacing the previous file on every
// commit.
type fileStore struct {
	path string
}

func newFileStore(path string) *fileStore {
	return &fileStore{path: path}
}

func (f *fileStore) exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

func (f *fileStore) load(idp identityProvider) (container, error) {
	blob, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return newContainer(), nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, "vault", "read vault file", err)
	}

	id, err := idp.identity()
	if err != nil {
		return nil, err
	}
	plaintext, err := open(blob, id)
	if err != nil {
		return nil, err
	}
	return unmarshalContainer(plaintext)
}

// commit seals c and atomically replaces the vault file, writing via
// a temp file in the same directory followed by os.Rename so a crash
// mid-write never leaves a truncated container on disk.
func (f *fileStore) commit(c container, idp identityProvider) error {
	plaintext, err := c.marshalJSON()
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "vault", "marshal container", err)
	}

	recip, err := idp.recipient()
	if err != nil {
		return err
	}
	blob, err := seal(plaintext, recip)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return apperr.Wrap(apperr.KindInternal, "vault", "create vault dir", err)
	}
	tmp, err := os.CreateTemp(dir, ".vault-*.tmp")
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "vault", "create temp file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.KindInternal, "vault", "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.KindInternal, "vault", "close temp file", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.KindInternal, "vault", "chmod temp file", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.KindInternal, "vault", "replace vault file", err)
	}
	return nil
}
