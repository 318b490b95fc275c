package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisabledAlwaysDenies(t *testing.T) {
	require.False(t, Evaluate(Policy{Kind: Always}, Context{}, true))
}

func TestWithAuthIgnoresApproval(t *testing.T) {
	p := Policy{Kind: WithAuth}
	require.False(t, Evaluate(p, Context{UserApproved: true, AgentAccessEnabled: true}, false))
	require.True(t, Evaluate(p, Context{Authenticated: true}, false))
}

func TestWithApprovalEitherBitSuffices(t *testing.T) {
	p := Policy{Kind: WithApproval}
	require.True(t, Evaluate(p, Context{UserApproved: true}, false))
	require.True(t, Evaluate(p, Context{AgentAccessEnabled: true}, false))
	require.False(t, Evaluate(p, Context{}, false))
}

func TestSkillOnlyRequiresMembership(t *testing.T) {
	p := NewSkillOnly("web", "shell")
	require.True(t, Evaluate(p, Context{ActiveSkill: "web"}, false))
	require.False(t, Evaluate(p, Context{ActiveSkill: "browser"}, false))
	require.False(t, Evaluate(p, Context{}, false))
}
