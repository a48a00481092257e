package profiles

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const maxUsernameLen = 32

var lower = cases.Lower(language.Und)

// usernameFromEmail returns the normalised local part of an email, or "" when
// nothing usable is left after normalisation.
func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	local = lower.String(norm.NFKC.String(local))

	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
		if b.Len() >= maxUsernameLen {
			break
		}
	}
	return strings.Trim(b.String(), ".-")
}

func fallbackUsername(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return "user_" + strings.ToLower(id)
}

// withSuffix は衝突回避用の短い接尾辞を付ける
func withSuffix(base, id string) string {
	suffix := strings.ToLower(id)
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	if len(base)+1+len(suffix) > maxUsernameLen {
		base = base[:maxUsernameLen-1-len(suffix)]
	}
	return base + "_" + suffix
}
