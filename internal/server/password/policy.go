// Package password validates raw passwords against the account password
// policy. Validation is pure: it collects every violated rule and never
// touches storage.
package password

import (
	"bufio"
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"github.com/artelie/backend/internal/common"
	passwordvalidator "github.com/wagslane/go-password-validator"
)

//go:embed common_passwords.txt
var commonPasswordsFile string

// minSimilarityPart is the shortest username/email fragment that counts for
// the similarity rule; shorter fragments match too many passwords by chance.
const minSimilarityPart = 3

// Context carries the account attributes a password must not resemble.
type Context struct {
	Username string
	Email    string
}

// Policy holds the active password rules.
type Policy struct {
	minLength      int
	strict         bool
	minEntropyBits float64
	common         map[string]struct{}
}

// NewPolicy builds a Policy. minLength below 8 is raised to 8. strict adds
// character-class and entropy requirements.
func NewPolicy(minLength int, strict bool, minEntropyBits float64) *Policy {
	if minLength < 8 {
		minLength = 8
	}
	return &Policy{
		minLength:      minLength,
		strict:         strict,
		minEntropyBits: minEntropyBits,
		common:         loadCommon(commonPasswordsFile),
	}
}

func loadCommon(list string) map[string]struct{} {
	set := make(map[string]struct{}, 256)
	sc := bufio.NewScanner(strings.NewReader(list))
	for sc.Scan() {
		if w := strings.TrimSpace(sc.Text()); w != "" {
			set[strings.ToLower(w)] = struct{}{}
		}
	}
	return set
}

// Validate returns nil or a *common.WeakPasswordError listing every rule raw
// violates.
func (p *Policy) Validate(raw string, c Context) error {
	var reasons []string

	if n := len([]rune(raw)); n < p.minLength {
		reasons = append(reasons, fmt.Sprintf("password must be at least %d characters long", p.minLength))
	}

	lower := strings.ToLower(raw)
	if similar(lower, c.Username) {
		reasons = append(reasons, "password is too similar to the username")
	}
	if local, _, _ := strings.Cut(c.Email, "@"); similar(lower, local) {
		reasons = append(reasons, "password is too similar to the email address")
	}

	if _, ok := p.common[lower]; ok {
		reasons = append(reasons, "password is too common")
	}

	if raw != "" && strings.IndexFunc(raw, func(r rune) bool { return !unicode.IsDigit(r) }) == -1 {
		reasons = append(reasons, "password cannot be entirely numeric")
	}

	if p.strict {
		reasons = append(reasons, p.strictReasons(raw)...)
	}

	if len(reasons) == 0 {
		return nil
	}
	return &common.WeakPasswordError{Reasons: reasons}
}

func (p *Policy) strictReasons(raw string) []string {
	var upper, lowerCase, digit, symbol bool
	for _, r := range raw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lowerCase = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	var reasons []string
	if !upper {
		reasons = append(reasons, "password must contain at least one uppercase letter")
	}
	if !lowerCase {
		reasons = append(reasons, "password must contain at least one lowercase letter")
	}
	if !digit {
		reasons = append(reasons, "password must contain at least one digit")
	}
	if !symbol {
		reasons = append(reasons, "password must contain at least one special character")
	}

	if p.minEntropyBits > 0 {
		if bits := passwordvalidator.GetEntropy(raw); bits < p.minEntropyBits {
			reasons = append(reasons, fmt.Sprintf("password is too easy to guess (%.0f bits of entropy, need %.0f)", bits, p.minEntropyBits))
		}
	}
	return reasons
}

// similar reports whether the lowercased password contains attr, or one of
// its separator-delimited fragments, or is itself contained in one of them.
func similar(lowerPassword, attr string) bool {
	if lowerPassword == "" {
		return false
	}
	attr = strings.ToLower(strings.TrimSpace(attr))

	parts := strings.FieldsFunc(attr, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	parts = append(parts, attr)

	for _, part := range parts {
		if len(part) < minSimilarityPart {
			continue
		}
		if strings.Contains(lowerPassword, part) {
			return true
		}
		if len(lowerPassword) >= minSimilarityPart && strings.Contains(part, lowerPassword) {
			return true
		}
	}
	return false
}
