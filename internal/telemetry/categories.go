package telemetry

import "strings"

// OtherCategory collects reason codes outside the configured set.
const OtherCategory = "other"

// DefaultCategories is used when no category list is configured.
var DefaultCategories = []string{
	"no-signal", "ai-veto", "bias-blocked", "routing-unavailable", "planner-error",
	"cooldown", "open-cap", "risk-cap", "validation",
}

// Categories is the bounded set of reject categories a report may carry.
type Categories struct {
	names []string
	set   map[string]struct{}
}

func NewCategories(names []string) Categories {
	if len(names) == 0 {
		names = DefaultCategories
	}
	c := Categories{set: make(map[string]struct{}, len(names))}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || n == OtherCategory {
			continue
		}
		if _, dup := c.set[n]; dup {
			continue
		}
		c.set[n] = struct{}{}
		c.names = append(c.names, n)
	}
	return c
}

// Bucket maps a reason code onto its category.
func (c Categories) Bucket(reason string) string {
	reason = strings.ToLower(strings.TrimSpace(reason))
	if _, ok := c.set[reason]; ok {
		return reason
	}
	return OtherCategory
}

// Names returns the configured categories followed by the catch-all.
func (c Categories) Names() []string {
	return append(append([]string(nil), c.names...), OtherCategory)
}
