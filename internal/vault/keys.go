package vault

import (
	"strings"

	"github.com/rustyclaw/core/internal/vault/policy"
)

const (
	credPrefix   = "cred:"
	valPrefix    = "val:"
	browserStore = "browser_store"
	internalPrefix = "__"

	totpSecretName = "TOTP_SECRET_KEY"
)

func credKey(name string) string { return credPrefix + name }

func valKey(name, suffix string) string {
	if suffix == "" {
		return valPrefix + name
	}
	return valPrefix + name + ":" + suffix
}

// isLegacyKey reports whether key is a bare secret name: not a cred:,
// val:, browser_store, or __-prefixed internal key.
func isLegacyKey(key string) bool {
	if key == browserStore {
		return false
	}
	if strings.HasPrefix(key, credPrefix) || strings.HasPrefix(key, valPrefix) {
		return false
	}
	if strings.HasPrefix(key, internalPrefix) {
		return false
	}
	return true
}

// synthesizeEnvelope builds a minimal envelope for a legacy bare-key
// entry, guessing kind from the name and humanizing the label.
func synthesizeEnvelope(name string) Envelope {
	return Envelope{
		Name:   name,
		Label:  humanizeName(name),
		Kind:   guessKind(name),
		Policy: policy.Default(),
	}
}

func guessKind(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "token"):
		return KindToken
	case strings.Contains(lower, "ssh"):
		return KindSSHKey
	case strings.Contains(lower, "password") || strings.Contains(lower, "passwd"):
		return KindUsernamePassword
	case strings.Contains(lower, "key") || strings.Contains(lower, "secret"):
		return KindAPIKey
	default:
		return KindOther
	}
}

func humanizeName(name string) string {
	replaced := strings.NewReplacer("_", " ", "-", " ").Replace(name)
	words := strings.Fields(replaced)
	for i, w := range words {
		if len(w) == 0 {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

