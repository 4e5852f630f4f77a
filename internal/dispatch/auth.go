package dispatch

import (
	"fmt"
	"regexp"
)

// DefaultRelayedPatterns match hostmasks of web gateways and relays whose
// users cannot be held to their identity.
var DefaultRelayedPatterns = []string{
	`(?i)@gateway/`,
	`(?i)@(?:[^.]+\.)*(?:mibbit|kiwiirc|irccloud)\.`,
}

// Sender identifies who issued a command.
type Sender struct {
	Nick string `json:"nick"`
	User string `json:"user"`
	Host string `json:"host"`
}

// Hostmask renders the sender as nick!user@host.
func (s Sender) Hostmask() string {
	return s.Nick + "!" + s.User + "@" + s.Host
}

// Authorizer decides whether a sender may run commands that change state.
type Authorizer interface {
	Authorized(sender Sender) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(Sender) bool

// Authorized calls f.
func (f AuthorizerFunc) Authorized(s Sender) bool { return f(s) }

// AllowAll authorizes every sender.
var AllowAll = AuthorizerFunc(func(Sender) bool { return true })

// PatternAuthorizer refuses senders whose hostmask matches a relayed pattern.
type PatternAuthorizer struct {
	relayed []*regexp.Regexp
}

// NewPatternAuthorizer compiles patterns. A nil slice selects DefaultRelayedPatterns.
func NewPatternAuthorizer(patterns []string) (*PatternAuthorizer, error) {
	if patterns == nil {
		patterns = DefaultRelayedPatterns
	}
	a := &PatternAuthorizer{relayed: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile relayed pattern %q: %w", p, err)
		}
		a.relayed = append(a.relayed, re)
	}
	return a, nil
}

// Authorized reports whether s connects directly.
func (a *PatternAuthorizer) Authorized(s Sender) bool {
	mask := s.Hostmask()
	for _, re := range a.relayed {
		if re.MatchString(mask) {
			return false
		}
	}
	return true
}
