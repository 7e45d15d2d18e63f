package bot

import (
	"context"
	"fmt"
	"regexp"

	"golang.org/x/text/cases"

	"github.com/garyellow/messenger-nlu-bot/internal/messenger"
)

// MatchInfo describes why a matcher fired.
type MatchInfo struct {
	// Keyword is the registered string, or the regexp source.
	Keyword string
	// Match holds the full match followed by capture groups. For string
	// keywords it is the inbound text alone.
	Match []string
	// Captured is always false when a callback runs; it reports whether an
	// earlier matcher already took the event.
	Captured bool
}

// Callback handles a matched message.
type Callback func(ctx context.Context, event *messenger.Event, conv Conversation, info MatchInfo)

// matcher is one OnText registration.
type matcher struct {
	keyword string // case-folded; empty for regexp matchers
	raw     string
	re      *regexp.Regexp
	cb      Callback
}

func newMatcher(pattern any, cb Callback) matcher {
	if cb == nil {
		panic("bot: OnText callback must not be nil")
	}
	switch p := pattern.(type) {
	case string:
		if p == "" {
			panic("bot: OnText keyword must not be empty")
		}
		return matcher{keyword: fold(p), raw: p, cb: cb}
	case *regexp.Regexp:
		if p == nil {
			panic("bot: OnText regexp must not be nil")
		}
		return matcher{raw: p.String(), re: p, cb: cb}
	default:
		panic(fmt.Sprintf("bot: OnText pattern must be string or *regexp.Regexp, got %T", pattern))
	}
}

// match reports whether text triggers the matcher.
func (m matcher) match(text string) (MatchInfo, bool) {
	if m.re != nil {
		groups := m.re.FindStringSubmatch(text)
		if groups == nil {
			return MatchInfo{}, false
		}
		return MatchInfo{Keyword: m.raw, Match: groups}, true
	}
	if fold(text) != m.keyword {
		return MatchInfo{}, false
	}
	return MatchInfo{Keyword: m.raw, Match: []string{text}}, true
}

// fold applies Unicode case folding. Casers are not shared across goroutines.
func fold(s string) string {
	return cases.Fold().String(s)
}
