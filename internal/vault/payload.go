package vault

import (
	"encoding/json"

	"github.com/rustyclaw/core/internal/common/apperr"
)

// loadEnvelope loads `cred:<name>`, falling back to synthesizing one
// from a legacy bare `<name>` key. The second return reports whether
// the resolved entry is legacy (payload lives at the bare key, not
// under val:<name>).
func loadEnvelope(c container, name string) (Envelope, bool, bool) {
	if raw, ok := c[credKey(name)]; ok {
		var env Envelope
		if err := json.Unmarshal(raw, &env); err == nil {
			return env, false, true
		}
	}
	if _, ok := c[name]; ok {
		return synthesizeEnvelope(name), true, true
	}
	return Envelope{}, false, false
}

// readPayload assembles the kind-appropriate typed Value for name.
func readPayload(c container, name string, kind Kind, legacy bool) (Value, error) {
	if legacy {
		return Value{Single: string(c[name])}, nil
	}

	switch kind {
	case KindUsernamePassword, KindHTTPPasskey:
		pw := string(c[valKey(name, "")])
		user := string(c[valKey(name, "user")])
		return Value{UserPass: &UsernamePassword{Username: user, Password: pw}}, nil
	case KindSSHKey:
		priv := string(c[valKey(name, "")])
		pub := string(c[valKey(name, "pub")])
		return Value{SSHKey: &SSHKeyPair{PrivatePEM: priv, PublicSSHLine: pub}}, nil
	case KindFormAutofill:
		raw, ok := c[valKey(name, "fields")]
		if !ok {
			return Value{}, nil
		}
		var fields []FormField
		if err := json.Unmarshal(raw, &fields); err != nil {
			return Value{}, apperr.Wrap(apperr.KindCorruptEnvelope, "vault", "unmarshal fields", err)
		}
		return Value{Fields: fields}, nil
	case KindPaymentMethod:
		var card *PaymentCard
		if raw, ok := c[valKey(name, "card")]; ok {
			card = &PaymentCard{}
			if err := json.Unmarshal(raw, card); err != nil {
				return Value{}, apperr.Wrap(apperr.KindCorruptEnvelope, "vault", "unmarshal card", err)
			}
		}
		var extra map[string]string
		if raw, ok := c[valKey(name, "card_extra")]; ok {
			if err := json.Unmarshal(raw, &extra); err != nil {
				return Value{}, apperr.Wrap(apperr.KindCorruptEnvelope, "vault", "unmarshal card extra", err)
			}
		}
		return Value{Card: card, CardExtra: extra}, nil
	default:
		return Value{Single: string(c[valKey(name, "")])}, nil
	}
}

// writePayload persists the payload records for the given kind.
func writePayload(c container, name string, kind Kind, value Value) error {
	switch kind {
	case KindUsernamePassword, KindHTTPPasskey:
		if value.UserPass == nil {
			return apperr.New(apperr.KindInvalidInput, "vault", "username_password payload required")
		}
		c[valKey(name, "")] = []byte(value.UserPass.Password)
		c[valKey(name, "user")] = []byte(value.UserPass.Username)
	case KindSSHKey:
		if value.SSHKey == nil {
			return apperr.New(apperr.KindInvalidInput, "vault", "ssh_key payload required")
		}
		c[valKey(name, "")] = []byte(value.SSHKey.PrivatePEM)
		c[valKey(name, "pub")] = []byte(value.SSHKey.PublicSSHLine)
	case KindFormAutofill:
		raw, err := json.Marshal(value.Fields)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "vault", "marshal fields", err)
		}
		c[valKey(name, "fields")] = raw
	case KindPaymentMethod:
		if value.Card != nil {
			raw, err := json.Marshal(value.Card)
			if err != nil {
				return apperr.Wrap(apperr.KindInternal, "vault", "marshal card", err)
			}
			c[valKey(name, "card")] = raw
		}
		if value.CardExtra != nil {
			raw, err := json.Marshal(value.CardExtra)
			if err != nil {
				return apperr.Wrap(apperr.KindInternal, "vault", "marshal card extra", err)
			}
			c[valKey(name, "card_extra")] = raw
		}
	default:
		c[valKey(name, "")] = []byte(value.Single)
	}
	return nil
}
