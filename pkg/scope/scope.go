// Package scope defines the allow-list carried by proxy capabilities and the rules for matching a
// requested upstream call against it.
package scope

import (
	"fmt"
	"regexp"
	"strings"
)

// segmentPlaceholder matches a ":identifier" path placeholder.
var segmentPlaceholder = regexp.MustCompile(`:[A-Za-z_][A-Za-z0-9_]*`)

// segmentClass is what a placeholder expands to.
const segmentClass = `[\w\-_]+`

// Allowance is one permitted upstream call shape. Path uses ":name" for a wildcard segment.
type Allowance struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

// Compile translates the path pattern into a regular expression. Everything other than
// placeholders is matched literally.
func (a Allowance) Compile() (*regexp.Regexp, error) {
	var b strings.Builder
	last := 0
	for _, loc := range segmentPlaceholder.FindAllStringIndex(a.Path, -1) {
		b.WriteString(regexp.QuoteMeta(a.Path[last:loc[0]]))
		b.WriteString(segmentClass)
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(a.Path[last:]))
	return regexp.Compile(b.String())
}

// Match reports whether the requested path and method fit this entry. The path match is an
// unanchored search and the method comparison is exact.
func (a Allowance) Match(path, method string) bool {
	if a.Method != method {
		return false
	}
	re, err := a.Compile()
	if err != nil {
		return false
	}
	return re.MatchString(path)
}

// Matches reports whether any entry of the list permits the requested call.
//
// An empty list places no restriction and always matches. Callers that need to refuse unscoped
// capabilities should go through Policy.
func Matches(list []Allowance, path, method string) bool {
	if len(list) == 0 {
		return true
	}
	for _, a := range list {
		if a.Match(path, method) {
			return true
		}
	}
	return false
}

// Policy decides how capabilities without an allow-list are treated.
type Policy struct {
	// PermitUnscoped keeps the backward-compatible behaviour where a capability without an
	// allow-list may reach any path with any method.
	PermitUnscoped bool
}

// Allows applies the policy and then the allow-list.
func (p Policy) Allows(list []Allowance, path, method string) bool {
	if len(list) == 0 {
		return p.PermitUnscoped
	}
	return Matches(list, path, method)
}

// Validate checks that every entry is usable before it is embedded in a capability.
func Validate(list []Allowance) error {
	for i, a := range list {
		if a.Path == "" {
			return fmt.Errorf("allowance %d: path is required", i)
		}
		if a.Method == "" {
			return fmt.Errorf("allowance %d: method is required", i)
		}
		if _, err := a.Compile(); err != nil {
			return fmt.Errorf("allowance %d: %w", i, err)
		}
	}
	return nil
}
