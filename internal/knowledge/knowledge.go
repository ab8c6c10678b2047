package knowledge

import (
	"context"
	"strings"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/utils"
	"go.uber.org/zap"
)

// Entry is a canned answer returned when every keyword appears in a message
type Entry struct {
	Keywords []string
	Answer   string
}

// Base is a keyword-matched knowledge base
type Base struct {
	entries []Entry
	logger  *zap.Logger
}

// NewBase creates a new knowledge base. Entries without keywords or answer are skipped.
func NewBase(entries []Entry, logger *zap.Logger) *Base {
	b := &Base{logger: logger}
	for _, e := range entries {
		var kws []string
		for _, kw := range e.Keywords {
			if kw = utils.Fold(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		if len(kws) == 0 || strings.TrimSpace(e.Answer) == "" {
			logger.Warn("Skipping incomplete knowledge entry", zap.Strings("keywords", e.Keywords))
			continue
		}
		b.entries = append(b.entries, Entry{Keywords: kws, Answer: strings.TrimSpace(e.Answer)})
	}
	return b
}

// Lookup returns the answer of the most specific entry whose keywords all occur in the message
func (b *Base) Lookup(_ context.Context, msg *core.Message) (string, bool, error) {
	if len(b.entries) == 0 {
		return "", false, nil
	}
	words := utils.WordSet(msg.Subject + "\n" + msg.Body)

	best := -1
	for i, e := range b.entries {
		if !containsAll(words, e.Keywords) {
			continue
		}
		if best < 0 || len(e.Keywords) > len(b.entries[best].Keywords) {
			best = i
		}
	}
	if best < 0 {
		return "", false, nil
	}

	b.logger.Debug("Knowledge base match",
		zap.String("message_id", msg.ID),
		zap.Strings("keywords", b.entries[best].Keywords))
	return b.entries[best].Answer, true, nil
}

func containsAll(words map[string]struct{}, keywords []string) bool {
	for _, kw := range keywords {
		if _, ok := words[kw]; !ok {
			return false
		}
	}
	return true
}
