package vault

import "github.com/rustyclaw/core/internal/vault/policy"

// Kind classifies the sensitive payload shape a credential entry
// carries.
type Kind string

const (
	KindAPIKey           Kind = "api_key"
	KindHTTPPasskey      Kind = "http_passkey"
	KindUsernamePassword Kind = "username_password"
	KindSSHKey           Kind = "ssh_key"
	KindToken            Kind = "token"
	KindFormAutofill     Kind = "form_autofill"
	KindPaymentMethod    Kind = "payment_method"
	KindSecureNote       Kind = "secure_note"
	KindOther            Kind = "other"
)

// Envelope is a credential's metadata record, stored under the
// `cred:<name>` key. The sensitive payload lives in separate
// `val:<name>[:suffix]` records (see container.go).
type Envelope struct {
	Name        string        `json:"name"`
	Label       string        `json:"label"`
	Kind        Kind          `json:"kind"`
	Policy      policy.Policy `json:"policy"`
	Description string        `json:"description,omitempty"`
	Disabled    bool          `json:"disabled"`
}

// UsernamePassword is the payload for KindUsernamePassword /
// KindHTTPPasskey entries.
type UsernamePassword struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SSHKeyPair is the payload for KindSSHKey entries.
type SSHKeyPair struct {
	PrivatePEM   string `json:"private_pem"`
	PublicSSHLine string `json:"public_ssh_line"`
}

// FormField is one entry of an ordered form-autofill mapping.
type FormField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PaymentCard is the primary payload for KindPaymentMethod entries.
type PaymentCard struct {
	Cardholder string `json:"cardholder"`
	Number     string `json:"number"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
}

// Value is the typed union returned alongside an Envelope by a typed
// read. Only the fields for Envelope.Kind are populated: Card and
// CardExtra together for payment methods, exactly one field otherwise.
type Value struct {
	Single      string             `json:"single,omitempty"`
	UserPass    *UsernamePassword  `json:"user_pass,omitempty"`
	SSHKey      *SSHKeyPair        `json:"ssh_key,omitempty"`
	Fields      []FormField        `json:"fields,omitempty"`
	Card        *PaymentCard       `json:"card,omitempty"`
	CardExtra   map[string]string  `json:"card_extra,omitempty"`
}
