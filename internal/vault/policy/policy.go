// Package policy implements the pure access-decision function that
// gates every vault read: PolicyEngine (component G).
package policy

// Kind tags the shape of an AccessPolicy variant.
type Kind string

const (
	Always       Kind = "always"
	WithApproval Kind = "with_approval"
	WithAuth     Kind = "with_auth"
	SkillOnly    Kind = "skill_only"
)

// Policy is a tagged variant over the four access-policy shapes a
// vault entry can carry. Skills is only meaningful when Kind ==
// SkillOnly. Default() returns WithApproval, the entry default.
type Policy struct {
	Kind   Kind
	Skills map[string]struct{}
}

// Default returns the default policy for a freshly stored entry.
func Default() Policy {
	return Policy{Kind: WithApproval}
}

// NewSkillOnly builds a SkillOnly policy over the given skill names.
func NewSkillOnly(skills ...string) Policy {
	set := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		set[s] = struct{}{}
	}
	return Policy{Kind: SkillOnly, Skills: set}
}

// Context carries the three orthogonal authorization bits a caller
// supplies per read, plus the vault-wide agent-access toggle observed
// by the engine.
type Context struct {
	UserApproved      bool
	Authenticated     bool
	ActiveSkill       string
	AgentAccessEnabled bool
}

// Evaluate decides whether a read of an entry under policy p is
// allowed given ctx, independent of decryption: a disabled entry is
// always denied regardless of policy, and evaluation must happen
// before any payload is touched so that denial never leaks whether
// the payload itself exists.
func Evaluate(p Policy, ctx Context, disabled bool) bool {
	if disabled {
		return false
	}
	switch p.Kind {
	case Always:
		return true
	case WithApproval:
		return ctx.UserApproved || ctx.AgentAccessEnabled
	case WithAuth:
		return ctx.Authenticated
	case SkillOnly:
		if ctx.ActiveSkill == "" {
			return false
		}
		_, ok := p.Skills[ctx.ActiveSkill]
		return ok
	default:
		return false
	}
}
