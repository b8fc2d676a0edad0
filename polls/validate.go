package polls

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	minTitleLen    = 3
	maxTitleLen    = 200
	minOptions     = 2
	minPasswordLen = 6
)

type CreateInput struct {
	Title       string
	Description string
	Options     []string
	Password    string
	ExpiresAt   time.Time
	IsPrivate   bool
	Emails      []string
}

func (in CreateInput) validate(now time.Time) ([]string, []string, error) {
	title := strings.TrimSpace(in.Title)
	if n := utf8.RuneCountInString(title); n < minTitleLen || n > maxTitleLen {
		return nil, nil, newError(KindInvalid, fmt.Sprintf("title must be between %d and %d characters", minTitleLen, maxTitleLen))
	}

	if len(in.Options) < minOptions {
		return nil, nil, newError(KindInvalid, fmt.Sprintf("at least %d options are required", minOptions))
	}
	options := make([]string, len(in.Options))
	for i, o := range in.Options {
		options[i] = strings.TrimSpace(o)
		if options[i] == "" {
			return nil, nil, newError(KindInvalid, "every option needs text")
		}
	}

	if in.ExpiresAt.IsZero() || !in.ExpiresAt.After(now) {
		return nil, nil, newError(KindInvalid, "expiry must be in the future")
	}

	if utf8.RuneCountInString(in.Password) < minPasswordLen {
		return nil, nil, newError(KindInvalid, fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}

	emails, err := validateEmails(in.Emails)
	if err != nil {
		return nil, nil, err
	}
	return options, emails, nil
}

// validateEmails lower-cases and deduplicates the list, failing on the first
// malformed address.
func validateEmails(in []string) ([]string, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	var bad []string
	for _, e := range in {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		addr, err := mail.ParseAddress(e)
		if err != nil || addr.Address != e || !strings.Contains(e[strings.LastIndexByte(e, '@')+1:], ".") {
			bad = append(bad, e)
			continue
		}
		key := strings.ToLower(addr.Address)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	if len(bad) > 0 {
		return nil, newError(KindInvalid, "invalid emails: "+strings.Join(bad, ", "))
	}
	return out, nil
}

func trim(s string) string {
	return strings.TrimSpace(s)
}
