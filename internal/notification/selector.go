package notification

import (
	"context"
	"fmt"
	"slices"

	"github.com/shaharia-lab/notifyd/internal/storage"
)

// TemplateCatalog lists enabled templates for a code in a stable order.
type TemplateCatalog interface {
	ListEnabledByCode(ctx context.Context, code string) ([]*storage.Template, error)
}

// Selector resolves a notification code into a channel -> template map.
type Selector struct {
	catalog TemplateCatalog
}

// NewSelector creates a Selector over catalog.
func NewSelector(catalog TemplateCatalog) *Selector {
	return &Selector{catalog: catalog}
}

// Select returns, for each channel, the first enabled template (in catalog
// order) that declares it. When preferred is non-empty only those channels
// are considered.
func (s *Selector) Select(ctx context.Context, code string, preferred []string) (*Selection, error) {
	templates, err := s.catalog.ListEnabledByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("loading templates for %q: %w", code, err)
	}

	prefs := dedupe(preferred)
	sel := &Selection{templates: make(map[string]*storage.Template)}
	for _, t := range templates {
		if t == nil || !t.Enabled() {
			continue
		}
		for _, ch := range t.Channels {
			if len(prefs) > 0 && !slices.Contains(prefs, ch) {
				continue
			}
			if _, claimed := sel.templates[ch]; claimed {
				continue
			}
			sel.templates[ch] = t
			sel.order = append(sel.order, ch)
		}
	}
	return sel, nil
}

// Selection is the channel -> template map produced for one dispatch.
type Selection struct {
	order     []string
	templates map[string]*storage.Template
}

// NewSelection builds a Selection from channel/template pairs in the given
// order. It is mostly useful in tests and for callers that select templates
// themselves.
func NewSelection(pairs ...ChannelTemplate) *Selection {
	sel := &Selection{templates: make(map[string]*storage.Template)}
	for _, p := range pairs {
		if _, ok := sel.templates[p.Channel]; ok {
			continue
		}
		sel.templates[p.Channel] = p.Template
		sel.order = append(sel.order, p.Channel)
	}
	return sel
}

// ChannelTemplate pairs a channel with the template that claimed it.
type ChannelTemplate struct {
	Channel  string
	Template *storage.Template
}

// IsEmpty reports whether no channel was claimed.
func (s *Selection) IsEmpty() bool {
	return s == nil || len(s.order) == 0
}

// Channels returns the claimed channels in claim order.
func (s *Selection) Channels() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.order)
}

// Template returns the template that claimed ch, or nil.
func (s *Selection) Template(ch string) *storage.Template {
	if s == nil {
		return nil
	}
	return s.templates[ch]
}

// TemplateGroup is a set of channels owned by the same template.
type TemplateGroup struct {
	Template *storage.Template
	Channels []string
}

// GroupByTemplate partitions channels by owning template. Groups appear in
// the order their template is first seen; channels not in the selection are
// dropped.
func (s *Selection) GroupByTemplate(channels []string) []TemplateGroup {
	if s == nil {
		return nil
	}
	var groups []TemplateGroup
	index := make(map[*storage.Template]int)
	for _, ch := range channels {
		t, ok := s.templates[ch]
		if !ok {
			continue
		}
		i, seen := index[t]
		if !seen {
			i = len(groups)
			index[t] = i
			groups = append(groups, TemplateGroup{Template: t})
		}
		if !slices.Contains(groups[i].Channels, ch) {
			groups[i].Channels = append(groups[i].Channels, ch)
		}
	}
	return groups
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	return out
}
