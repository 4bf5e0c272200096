package authority

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Action names the dimensions of one proposed action. Empty fields are not
// checked along that dimension.
type Action struct {
	Tool        string
	Skill       string
	Path        string
	NetworkHost string
}

// Decision is the outcome of an authority check. Denial is a normal,
// expected outcome, not an error.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true, Reason: "authorized"}
}

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// CheckAuthority evaluates the action against the token: expiry first, then
// tool, skill, path, and network host. An empty allowlist means the token
// is unrestricted along that dimension.
func CheckAuthority(token *ExecutionToken, action Action, now time.Time) Decision {
	if token == nil {
		return deny("no execution token bound")
	}
	if token.Status != StatusActive {
		return deny("token %s is %s", token.ID, token.Status)
	}
	if token.IsExpired(now) {
		return deny("token %s is expired (actions %d/%d, expires %s)",
			token.ID, token.ActionsUsed, token.MaxActions, token.ExpiresAt.Format(time.RFC3339))
	}

	if action.Tool != "" && !listed(token.AllowedTools, action.Tool) {
		return deny("tool %q is not in the token's allowed tools", action.Tool)
	}
	if action.Skill != "" && !listed(token.AllowedSkills, action.Skill) {
		return deny("skill %q is not in the token's allowed skills", action.Skill)
	}
	if action.Path != "" && !pathAllowed(token.AllowedPaths, action.Path) {
		return deny("path %q matches no allowed path pattern", action.Path)
	}
	if action.NetworkHost != "" {
		if d := checkNetwork(token, action.NetworkHost); !d.Allowed {
			return d
		}
	}

	return allow()
}

func checkNetwork(token *ExecutionToken, host string) Decision {
	switch token.NetworkPolicy {
	case NetworkFull:
		return allow()
	case NetworkAllowlist:
		for _, allowed := range token.NetworkAllowlist {
			if strings.EqualFold(allowed, host) {
				return allow()
			}
		}
		return deny("host %q is not in the token's network allowlist", host)
	default: // OFF or unset
		return deny("network access is off for token %s", token.ID)
	}
}

// listed reports membership, treating an empty list as unrestricted.
func listed(allowlist []string, value string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, v := range allowlist {
		if v == value {
			return true
		}
	}
	return false
}

// pathAllowed matches the path against each pattern with glob semantics
// (path.Match), falling back to exact and prefix-directory matches so a
// pattern like "/workspace" covers files beneath it.
func pathAllowed(patterns []string, p string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if pattern == p {
			return true
		}
		if ok, err := path.Match(pattern, p); err == nil && ok {
			return true
		}
		if strings.HasPrefix(p, strings.TrimSuffix(pattern, "/")+"/") {
			return true
		}
	}
	return false
}
