package vault

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // RFC 6238 mandates SHA1 for TOTP.
	"encoding/base32"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rustyclaw/core/internal/common/apperr"
	"github.com/rustyclaw/core/internal/vault/policy"
)

// No pack dependency implements RFC 6238 TOTP (see DESIGN.md); this
// is a direct, dependency-free implementation of the standard.

const (
	totpPeriodSeconds = 30
	totpDigits        = 6
	totpSecretBytes   = 20
	totpIssuer        = "RustyClaw"
)

// SetupTOTP generates a fresh base32 secret, stores it under the
// reserved TOTP_SECRET_KEY entry as an ApiKey-kind credential, and
// returns an otpauth:// provisioning URL.
func (v *Vault) SetupTOTP(user string) (string, error) {
	secret, err := generateTOTPSecret()
	if err != nil {
		return "", err
	}

	env := Envelope{
		Name:   totpSecretName,
		Label:  "TOTP Secret",
		Kind:   KindAPIKey,
		Policy: policy.Policy{Kind: policy.Always},
	}
	if err := v.StoreCredential(totpSecretName, env, Value{Single: secret}); err != nil {
		return "", err
	}

	return buildOTPAuthURL(user, secret), nil
}

// HasTOTP reports whether a TOTP secret is currently configured.
func (v *Vault) HasTOTP() bool {
	_, _, err := v.GetCredential(totpSecretName, policy.Context{AgentAccessEnabled: true})
	return err == nil
}

// RemoveTOTP deletes the stored TOTP secret, if any.
func (v *Vault) RemoveTOTP() error {
	err := v.DeleteCredential(totpSecretName)
	if apperr.KindIs(err, apperr.KindNotFound) {
		return nil
	}
	return err
}

// VerifyTOTP reports whether code matches the current 30-second
// window's 6-digit TOTP code derived from the stored secret.
func (v *Vault) VerifyTOTP(code string) bool {
	_, val, err := v.GetCredential(totpSecretName, policy.Context{AgentAccessEnabled: true})
	if err != nil {
		return false
	}
	expected, err := computeTOTPCode(val.Single, time.Now())
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(code))
}

func generateTOTPSecret() (string, error) {
	raw, err := randomBytes(totpSecretBytes)
	if err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

func buildOTPAuthURL(user, secret string) string {
	label := totpIssuer
	if user != "" {
		label = totpIssuer + ":" + user
	}
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", totpIssuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", fmt.Sprintf("%d", totpDigits))
	v.Set("period", fmt.Sprintf("%d", totpPeriodSeconds))
	return fmt.Sprintf("otpauth://totp/%s?%s", url.PathEscape(label), v.Encode())
}

func computeTOTPCode(secret string, at time.Time) (string, error) {
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", apperr.Wrap(apperr.KindCorruptEnvelope, "vault", "decode totp secret", err)
	}

	counter := uint64(at.Unix() / totpPeriodSeconds)
	var counterBytes [8]byte
	for i := 7; i >= 0; i-- {
		counterBytes[i] = byte(counter & 0xff)
		counter >>= 8
	}

	mac := hmac.New(sha1.New, key)
	mac.Write(counterBytes[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := (uint32(sum[offset])&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])

	code := truncated % 1000000
	return fmt.Sprintf("%06d", code), nil
}
