package authority_test

import (
	"testing"
	"time"

	"github.com/Mindburn-Labs/warden/pkg/authority"
	"github.com/stretchr/testify/assert"
)

func activeToken() *authority.ExecutionToken {
	now := time.Now().UTC()
	return &authority.ExecutionToken{
		ID:            "tok-1",
		CreatedAt:     now,
		Scope:         "refactor the parser",
		Status:        authority.StatusActive,
		NetworkPolicy: authority.NetworkOff,
		MaxActions:    10,
		ExpiresAt:     now.Add(time.Hour),
	}
}

func TestCheckAuthority_EmptyAllowlistsAreUnrestricted(t *testing.T) {
	token := activeToken()

	d := authority.CheckAuthority(token, authority.Action{
		Tool:  "anything",
		Skill: "whatever",
		Path:  "/etc/passwd",
	}, time.Now())
	assert.True(t, d.Allowed)
}

func TestCheckAuthority_ToolAllowlist(t *testing.T) {
	token := activeToken()
	token.AllowedTools = []string{"grep", "edit"}

	assert.True(t, authority.CheckAuthority(token, authority.Action{Tool: "edit"}, time.Now()).Allowed)

	d := authority.CheckAuthority(token, authority.Action{Tool: "bash"}, time.Now())
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "bash")
}

func TestCheckAuthority_SkillAllowlist(t *testing.T) {
	token := activeToken()
	token.AllowedSkills = []string{"summarize"}

	assert.True(t, authority.CheckAuthority(token, authority.Action{Skill: "summarize"}, time.Now()).Allowed)
	assert.False(t, authority.CheckAuthority(token, authority.Action{Skill: "exfiltrate"}, time.Now()).Allowed)
}

func TestCheckAuthority_PathGlobs(t *testing.T) {
	token := activeToken()
	token.AllowedPaths = []string{"/workspace/*.go", "/tmp"}

	tests := []struct {
		path    string
		allowed bool
	}{
		{"/workspace/main.go", true},
		{"/tmp/scratch.txt", true}, // prefix-directory match
		{"/tmp", true},
		{"/workspace/secrets.env", false},
		{"/home/user/.ssh/id_rsa", false},
	}
	for _, tt := range tests {
		d := authority.CheckAuthority(token, authority.Action{Path: tt.path}, time.Now())
		assert.Equal(t, tt.allowed, d.Allowed, "path %s", tt.path)
	}
}

func TestCheckAuthority_NetworkPolicies(t *testing.T) {
	now := time.Now()

	token := activeToken()
	token.NetworkPolicy = authority.NetworkOff
	assert.False(t, authority.CheckAuthority(token, authority.Action{NetworkHost: "example.com"}, now).Allowed)

	token.NetworkPolicy = authority.NetworkFull
	assert.True(t, authority.CheckAuthority(token, authority.Action{NetworkHost: "example.com"}, now).Allowed)

	token.NetworkPolicy = authority.NetworkAllowlist
	token.NetworkAllowlist = []string{"api.github.com"}
	assert.True(t, authority.CheckAuthority(token, authority.Action{NetworkHost: "api.github.com"}, now).Allowed)
	assert.False(t, authority.CheckAuthority(token, authority.Action{NetworkHost: "example.com"}, now).Allowed)
}

func TestCheckAuthority_ExpiryPrecedesAllowlists(t *testing.T) {
	token := activeToken()
	token.AllowedTools = []string{"grep"}

	// time expiry
	d := authority.CheckAuthority(token, authority.Action{Tool: "grep"}, token.ExpiresAt.Add(time.Second))
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "expired")

	// action exhaustion with time remaining
	token.ActionsUsed = token.MaxActions
	d = authority.CheckAuthority(token, authority.Action{Tool: "grep"}, time.Now())
	assert.False(t, d.Allowed)

	// non-ACTIVE status
	token.ActionsUsed = 0
	token.Status = authority.StatusRevoked
	d = authority.CheckAuthority(token, authority.Action{Tool: "grep"}, time.Now())
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "REVOKED")
}

func TestCheckAuthority_NilToken(t *testing.T) {
	d := authority.CheckAuthority(nil, authority.Action{Tool: "grep"}, time.Now())
	assert.False(t, d.Allowed)
}

func TestIsExpired_ByEitherLimit(t *testing.T) {
	token := activeToken()
	token.MaxActions = 3

	assert.False(t, token.IsExpired(time.Now()))

	token.ActionsUsed = 3
	assert.True(t, token.IsExpired(time.Now()), "exhausted actions with time remaining")

	token.ActionsUsed = 0
	assert.True(t, token.IsExpired(token.ExpiresAt), "wall clock at expiry with actions remaining")
}
