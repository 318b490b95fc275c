// Package vault implements the encrypted credential store, cookie
// jar, and TOTP support (component A), gated by the policy engine
// (component G, see internal/vault/policy).
package vault

import (
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/rustyclaw/core/internal/common/apperr"
	"github.com/rustyclaw/core/internal/common/config"
	"github.com/rustyclaw/core/internal/common/logger"
	"github.com/rustyclaw/core/internal/vault/policy"
)

// Vault is the single encrypted container described by spec §4.1: a
// flat keyspace of `cred:`/`val:` records plus a reserved cookie-jar
// blob, guarded by a single async mutex so at most one reader/writer
// runs at a time.
type Vault struct {
	mu         sync.Mutex
	store      *fileStore
	idp        identityProvider
	keyDir     *keyFileIdentity // non-nil only in key-file mode
	mode       string
	scryptCost int // configured password-mode work factor, reused by ChangePassword

	agentAccessEnabled bool
	logger             *logger.Logger
	audit              *auditRing
}

// Open constructs a Vault from cfg. In password mode, password must
// be non-empty to unlock an existing vault file; an empty password
// against an existing, key-file-less vault yields a locked manager
// per IsLocked. In key-file mode, an existing vault file whose key file
// is absent (the state ChangePassword leaves behind) is opened with
// password when one is given, and is locked otherwise.
func Open(cfg config.VaultConfig, password string, log *logger.Logger) (*Vault, error) {
	if log == nil {
		log = logger.Default()
	}
	v := &Vault{
		store:              newFileStore(cfg.Path),
		mode:               cfg.Mode,
		scryptCost:         cfg.ScryptCost,
		agentAccessEnabled: false,
		logger:             log.WithFields(zap.String("component", "vault")),
		audit:              newAuditRing(200),
	}

	switch cfg.Mode {
	case "password":
		if password != "" {
			v.idp = newPasswordIdentity(password, cfg.ScryptCost)
		}
	default:
		kf := newKeyFileIdentity(cfg.KeyFile)
		if password != "" && !kf.exists() && v.store.exists() {
			v.idp = newPasswordIdentity(password, cfg.ScryptCost)
			v.mode = "password"
		} else {
			v.keyDir = kf
			v.idp = kf
		}
	}
	return v, nil
}

// IsLocked reports whether the manager can perform any read/write:
// locked when the vault file exists, no password-derived identity is
// configured, and no key file exists on disk.
func (v *Vault) IsLocked() bool {
	if !v.store.exists() {
		return false
	}
	if _, ok := v.idp.(*passwordIdentity); ok {
		return false
	}
	if v.keyDir != nil && v.keyDir.exists() {
		return false
	}
	return true
}

// SetAgentAccessEnabled toggles the vault-wide flag observed by the
// WithApproval policy branch.
func (v *Vault) SetAgentAccessEnabled(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.agentAccessEnabled = enabled
}

func (v *Vault) withContainer(fn func(container) (container, bool, error)) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.IsLocked() {
		return apperr.New(apperr.KindVaultLocked, "vault", "vault is locked")
	}
	if v.idp == nil {
		return apperr.New(apperr.KindVaultLocked, "vault", "no credential configured")
	}

	c, err := v.store.load(v.idp)
	if err != nil {
		return err
	}
	next, dirty, err := fn(c)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	return v.store.commit(next, v.idp)
}

// StoreCredential persists envelope + payload atomically. The
// envelope name is canonicalized onto env.Name.
func (v *Vault) StoreCredential(name string, env Envelope, value Value) error {
	env.Name = name
	return v.withContainer(func(c container) (container, bool, error) {
		raw, err := json.Marshal(env)
		if err != nil {
			return nil, false, apperr.Wrap(apperr.KindInternal, "vault", "marshal envelope", err)
		}
		c[credKey(name)] = raw

		if err := writePayload(c, name, env.Kind, value); err != nil {
			return nil, false, err
		}
		v.audit.record(name, "store", string(env.Policy.Kind))
		return c, true, nil
	})
}

// GetCredential runs the policy engine then, on allow, loads and
// returns the typed payload. Policy denial never touches the payload.
func (v *Vault) GetCredential(name string, ctx policy.Context) (*Envelope, *Value, error) {
	var envOut Envelope
	var valOut Value

	ctx.AgentAccessEnabled = ctx.AgentAccessEnabled || v.agentAccessSnapshot()

	err := v.withContainer(func(c container) (container, bool, error) {
		env, legacy, ok := loadEnvelope(c, name)
		if !ok {
			return nil, false, apperr.New(apperr.KindNotFound, "vault", "credential not found: "+name)
		}

		if !policy.Evaluate(env.Policy, ctx, env.Disabled) {
			v.audit.record(name, "deny", string(env.Policy.Kind))
			return nil, false, apperr.New(apperr.KindAccessDenied, "vault", "access denied: "+name)
		}

		val, err := readPayload(c, name, env.Kind, legacy)
		if err != nil {
			return nil, false, err
		}

		envOut = env
		valOut = val
		v.audit.record(name, "allow", string(env.Policy.Kind))
		return c, false, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &envOut, &valOut, nil
}

func (v *Vault) agentAccessSnapshot() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.agentAccessEnabled
}

// DeleteCredential removes the envelope and every associated val:*
// record, including any legacy bare key.
func (v *Vault) DeleteCredential(name string) error {
	return v.withContainer(func(c container) (container, bool, error) {
		_, found := c[credKey(name)]
		_, legacyFound := c[name]
		if !found && !legacyFound {
			return nil, false, apperr.New(apperr.KindNotFound, "vault", "credential not found: "+name)
		}
		delete(c, credKey(name))
		delete(c, name)
		for _, suffix := range []string{"", "user", "pub", "fields", "card", "card_extra"} {
			delete(c, valKey(name, suffix))
		}
		v.audit.record(name, "delete", "")
		return c, true, nil
	})
}

// SetDisabled flips an entry's disabled flag without touching its
// payload.
func (v *Vault) SetDisabled(name string, disabled bool) error {
	return v.withContainer(func(c container) (container, bool, error) {
		raw, ok := c[credKey(name)]
		if !ok {
			return nil, false, apperr.New(apperr.KindNotFound, "vault", "credential not found: "+name)
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, false, apperr.Wrap(apperr.KindCorruptEnvelope, "vault", "unmarshal envelope", err)
		}
		env.Disabled = disabled
		out, err := json.Marshal(env)
		if err != nil {
			return nil, false, apperr.Wrap(apperr.KindInternal, "vault", "marshal envelope", err)
		}
		c[credKey(name)] = out
		return c, true, nil
	})
}

// SetPolicy updates an entry's access policy.
func (v *Vault) SetPolicy(name string, p policy.Policy) error {
	return v.withContainer(func(c container) (container, bool, error) {
		raw, ok := c[credKey(name)]
		if !ok {
			return nil, false, apperr.New(apperr.KindNotFound, "vault", "credential not found: "+name)
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, false, apperr.Wrap(apperr.KindCorruptEnvelope, "vault", "unmarshal envelope", err)
		}
		env.Policy = p
		out, err := json.Marshal(env)
		if err != nil {
			return nil, false, apperr.Wrap(apperr.KindInternal, "vault", "marshal envelope", err)
		}
		c[credKey(name)] = out
		return c, true, nil
	})
}

// ListCredentials returns only names with a real cred: envelope.
func (v *Vault) ListCredentials() ([]string, error) {
	var names []string
	err := v.withContainer(func(c container) (container, bool, error) {
		for k := range c {
			if len(k) > len(credPrefix) && k[:len(credPrefix)] == credPrefix {
				names = append(names, k[len(credPrefix):])
			}
		}
		return c, false, nil
	})
	sort.Strings(names)
	return names, err
}

// ListAllEntries additionally promotes bare legacy keys into
// synthesized envelopes.
func (v *Vault) ListAllEntries() ([]Envelope, error) {
	var entries []Envelope
	err := v.withContainer(func(c container) (container, bool, error) {
		seen := make(map[string]bool)
		for k, raw := range c {
			if len(k) > len(credPrefix) && k[:len(credPrefix)] == credPrefix {
				name := k[len(credPrefix):]
				var env Envelope
				if jsonErr := json.Unmarshal(raw, &env); jsonErr == nil {
					entries = append(entries, env)
					seen[name] = true
				}
			}
		}
		for k := range c {
			if isLegacyKey(k) && !seen[k] {
				entries = append(entries, synthesizeEnvelope(k))
			}
		}
		return c, false, nil
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, err
}

// ChangePassword re-opens under the current credential, re-seals
// under newPassword, atomically replaces the file, and (when moving
// away from key-file mode) deletes the key file.
func (v *Vault) ChangePassword(newPassword string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.IsLocked() || v.idp == nil {
		return apperr.New(apperr.KindVaultLocked, "vault", "vault is locked")
	}

	c, err := v.store.load(v.idp)
	if err != nil {
		return err
	}

	newIdp := newPasswordIdentity(newPassword, v.scryptCost)
	if err := v.store.commit(c, newIdp); err != nil {
		return err
	}

	oldKeyDir := v.keyDir
	v.idp = newIdp
	v.keyDir = nil
	v.mode = "password"

	if oldKeyDir != nil {
		if err := oldKeyDir.delete(); err != nil {
			v.logger.Warn("failed to remove key file after password change", zap.Error(err))
		}
	}
	return nil
}

// RecentAccess returns the last (up to) 200 access decisions recorded
// against this vault, newest first.
func (v *Vault) RecentAccess() []AuditEntry {
	return v.audit.snapshot()
}
