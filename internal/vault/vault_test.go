package vault

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rustyclaw/core/internal/common/config"
	"github.com/rustyclaw/core/internal/vault/policy"
)

func newTestVault(t *testing.T) (*Vault, config.VaultConfig) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.VaultConfig{
		Path:    filepath.Join(dir, "vault"),
		Mode:    "keyfile",
		KeyFile: filepath.Join(dir, "vault.key"),
	}
	v, err := Open(cfg, "", nil)
	require.NoError(t, err)
	return v, cfg
}

func TestStoreThenGetCredentialRoundTrips(t *testing.T) {
	v, _ := newTestVault(t)

	env := Envelope{Label: "API Key", Kind: KindAPIKey, Policy: policy.Policy{Kind: policy.Always}}
	require.NoError(t, v.StoreCredential("api_key", env, Value{Single: "hunter2"}))

	gotEnv, gotVal, err := v.GetCredential("api_key", policy.Context{})
	require.NoError(t, err)
	require.Equal(t, "API Key", gotEnv.Label)
	require.Equal(t, "hunter2", gotVal.Single)
}

func TestDisabledEntryAlwaysDenied(t *testing.T) {
	v, _ := newTestVault(t)

	env := Envelope{Kind: KindAPIKey, Policy: policy.Policy{Kind: policy.Always}, Disabled: true}
	require.NoError(t, v.StoreCredential("x", env, Value{Single: "v"}))

	_, _, err := v.GetCredential("x", policy.Context{UserApproved: true, Authenticated: true})
	require.Error(t, err)
}

func TestWithAuthRequiresAuthentication(t *testing.T) {
	v, _ := newTestVault(t)

	env := Envelope{Kind: KindAPIKey, Policy: policy.Policy{Kind: policy.WithAuth}}
	require.NoError(t, v.StoreCredential("x", env, Value{Single: "v"}))

	_, _, err := v.GetCredential("x", policy.Context{UserApproved: true, AgentAccessEnabled: true})
	require.Error(t, err)

	_, _, err = v.GetCredential("x", policy.Context{Authenticated: true})
	require.NoError(t, err)
}

func TestDeleteRemovesEnvelopeAndPayload(t *testing.T) {
	v, _ := newTestVault(t)

	env := Envelope{Kind: KindAPIKey, Policy: policy.Policy{Kind: policy.Always}}
	require.NoError(t, v.StoreCredential("x", env, Value{Single: "v"}))
	require.NoError(t, v.DeleteCredential("x"))

	_, _, err := v.GetCredential("x", policy.Context{})
	require.Error(t, err)
}

func TestChangePasswordRotatesCredential(t *testing.T) {
	v, cfg := newTestVault(t)

	env := Envelope{Kind: KindAPIKey, Policy: policy.Policy{Kind: policy.Always}}
	require.NoError(t, v.StoreCredential("x", env, Value{Single: "v"}))

	require.NoError(t, v.ChangePassword("new-pass"))
	require.NoFileExists(t, cfg.KeyFile)

	wrong, err := Open(cfg, "wrong", nil)
	require.NoError(t, err)
	_, _, err = wrong.GetCredential("x", policy.Context{})
	require.Error(t, err)

	right, err := Open(cfg, "new-pass", nil)
	require.NoError(t, err)
	_, val, err := right.GetCredential("x", policy.Context{})
	require.NoError(t, err)
	require.Equal(t, "v", val.Single)
}

func TestTOTPSetupVerifyRemove(t *testing.T) {
	v, _ := newTestVault(t)

	otpURL, err := v.SetupTOTP("user")
	require.NoError(t, err)
	require.Contains(t, otpURL, "RustyClaw")
	require.True(t, v.HasTOTP())

	require.False(t, v.VerifyTOTP("000000"))

	require.NoError(t, v.RemoveTOTP())
	require.False(t, v.HasTOTP())
}

func TestCookieJarRoundTrip(t *testing.T) {
	v, _ := newTestVault(t)

	err := v.StoreCookiesFromResponse("example.com", []string{
		"sid=abc123; Path=/; Secure",
		"theme=dark; Path=/",
	})
	require.NoError(t, err)

	header, ok := v.CookieHeaderForRequest("example.com", "/", true)
	require.True(t, ok)
	require.Contains(t, header, "sid=abc123")
	require.Contains(t, header, "theme=dark")

	headerHTTP, ok := v.CookieHeaderForRequest("example.com", "/", false)
	require.True(t, ok)
	require.NotContains(t, headerHTTP, "sid=abc123")
	require.Contains(t, headerHTTP, "theme=dark")
}

func TestLegacyKeyPromotedOnList(t *testing.T) {
	v, cfg := newTestVault(t)
	_ = cfg

	err := v.withContainer(func(c container) (container, bool, error) {
		c["legacy_token"] = []byte("abc")
		return c, true, nil
	})
	require.NoError(t, err)

	entries, err := v.ListAllEntries()
	require.NoError(t, err)

	var found bool
	for _, e := range entries {
		if e.Name == "legacy_token" {
			found = true
			require.Equal(t, KindToken, e.Kind)
		}
	}
	require.True(t, found)
}

func TestLockedVaultRejectsReadsAndWrites(t *testing.T) {
	dir := t.TempDir()
	cfg := config.VaultConfig{
		Path:    filepath.Join(dir, "vault"),
		Mode:    "password",
	}

	setup, err := Open(cfg, "p1", nil)
	require.NoError(t, err)
	env := Envelope{Kind: KindAPIKey, Policy: policy.Policy{Kind: policy.Always}}
	require.NoError(t, setup.StoreCredential("x", env, Value{Single: "v"}))

	locked, err := Open(cfg, "", nil)
	require.NoError(t, err)
	require.True(t, locked.IsLocked())

	_, _, err = locked.GetCredential("x", policy.Context{})
	require.Error(t, err)
}
