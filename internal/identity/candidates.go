package identity

import (
	"strings"

	"github.com/google/uuid"
)

const (
	placeholderDomain = "users.invalid"
	maxSlugLen        = 32
	// MaxProvisionAttempts bounds the retries on uniqueness collisions.
	MaxProvisionAttempts = 5
)

// Candidates derives the username, email and display name for a provisioning attempt.
// Attempt 0 is fully deterministic; later attempts append the given suffix.
func Candidates(claims Claims, attempt int, suffix string) Candidate {
	base := slug(claims.Username)
	if base == "" {
		local, _, _ := strings.Cut(strings.TrimSpace(claims.Email), "@")
		base = slug(local)
	}
	if base == "" {
		ref := strings.TrimSpace(claims.Ref)
		if id, err := uuid.Parse(ref); err == nil {
			base = "user-" + strings.ReplaceAll(id.String(), "-", "")[:8]
		} else {
			local, _, _ := strings.Cut(ref, "@")
			base = slug(local)
		}
	}
	if base == "" {
		base = "user"
	}

	username := base
	if attempt > 0 && suffix != "" {
		username = base + "-" + suffix
	}

	email := strings.TrimSpace(claims.Email)
	if email == "" {
		email = username + "@" + placeholderDomain
	}

	display := strings.TrimSpace(claims.DisplayName)
	if display == "" {
		display = base
	}
	return Candidate{Username: username, Email: email, DisplayName: display}
}

func slug(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	dash := false
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	return strings.Trim(b.String(), "-.")
}

// IsPlaceholderEmail reports emails synthesized by Candidates.
func IsPlaceholderEmail(email string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(email)), "@"+placeholderDomain)
}
