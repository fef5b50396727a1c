// Package notification is the dispatch pipeline: it selects templates for a
// notification code, vetoes channels through a guard chain, enqueues one job
// per surviving channel, and delivers each job with a durable status record.
package notification

import (
	"maps"
	"slices"
)

// Intent is a request to notify one recipient. It is not persisted.
type Intent struct {
	// Code identifies the notification family (e.g. "cert_issued").
	Code string `json:"code"`
	// NotifiableType selects the resolver for NotifiableID (e.g. "user").
	NotifiableType string `json:"notifiable_type"`
	NotifiableID   int64  `json:"notifiable_id"`
	// Context is the caller-supplied business data.
	Context map[string]any `json:"context,omitempty"`
	// PreferredChannels, when non-empty, restricts selection to these channels.
	PreferredChannels []string `json:"channels,omitempty"`
}

func (i Intent) clone() Intent {
	i.Context = maps.Clone(i.Context)
	if i.Context == nil {
		i.Context = map[string]any{}
	}
	i.PreferredChannels = slices.Clone(i.PreferredChannels)
	return i
}

// Job is one unit of asynchronous delivery work: one channel of one intent.
type Job struct {
	ID             string         `json:"id"`
	NotifiableType string         `json:"notifiable_type"`
	NotifiableID   int64          `json:"notifiable_id"`
	TemplateID     int64          `json:"template_id"`
	Channel        string         `json:"channel"`
	Context        map[string]any `json:"context"`
	BuilderID      string         `json:"builder_id"`
}
