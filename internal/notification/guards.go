package notification

import (
	"context"
	"fmt"
	"slices"

	"github.com/shaharia-lab/notifyd/internal/channel"
	"github.com/shaharia-lab/notifyd/internal/storage"
)

// Guard ids accepted in the dispatch policy.
const (
	GuardBuilderAvailability = "builder_availability"
	GuardSystemCapability    = "system_capability"
	GuardContactInformation  = "contact_information"
	GuardRecipientPreference = "recipient_preference"
)

// DefaultGuardOrder is the reference chain.
var DefaultGuardOrder = []string{
	GuardBuilderAvailability,
	GuardSystemCapability,
	GuardContactInformation,
	GuardRecipientPreference,
}

// BuilderAvailabilityGuard denies pairs whose builder route is explicitly empty.
type BuilderAvailabilityGuard struct {
	Builders *BuilderRegistry
}

// Name implements Guard.
func (BuilderAvailabilityGuard) Name() string { return GuardBuilderAvailability }

// Check implements Guard.
func (g BuilderAvailabilityGuard) Check(_ context.Context, _ Notifiable, ch string, _ *storage.Template, intent Intent) Verdict {
	if g.Builders != nil && g.Builders.Disabled(intent.Code, ch) {
		return Deny(fmt.Sprintf("builder disabled for %s", RouteKey(intent.Code, ch)))
	}
	return Allow()
}

// SystemCapabilityGuard denies channels with no registered or no available driver.
type SystemCapabilityGuard struct {
	Channels *channel.Registry
}

// Name implements Guard.
func (SystemCapabilityGuard) Name() string { return GuardSystemCapability }

// Check implements Guard.
func (g SystemCapabilityGuard) Check(_ context.Context, _ Notifiable, ch string, _ *storage.Template, _ Intent) Verdict {
	if g.Channels == nil {
		return Deny("no channel registry configured")
	}
	d, err := g.Channels.Lookup(ch)
	if err != nil {
		return Deny(fmt.Sprintf("channel %q has no driver", ch))
	}
	if !d.Available() {
		return Deny(fmt.Sprintf("channel %q is not configured", ch))
	}
	return Allow()
}

// ContactInformationGuard denies channels whose address cannot be resolved.
type ContactInformationGuard struct {
	// EmailChannels need an email address. Defaults to ["mail"].
	EmailChannels []string
	// PhoneChannels need a phone number. Defaults to ["sms"].
	PhoneChannels []string
}

// Name implements Guard.
func (ContactInformationGuard) Name() string { return GuardContactInformation }

// Check implements Guard.
func (g ContactInformationGuard) Check(_ context.Context, n Notifiable, ch string, _ *storage.Template, intent Intent) Verdict {
	emailChannels := g.EmailChannels
	if emailChannels == nil {
		emailChannels = []string{channel.Mail}
	}
	phoneChannels := g.PhoneChannels
	if phoneChannels == nil {
		phoneChannels = []string{channel.SMS}
	}

	switch {
	case slices.Contains(emailChannels, ch):
		if ContactEmail(n, intent.Context) == "" {
			return Deny("recipient has no email address")
		}
	case slices.Contains(phoneChannels, ch):
		if ContactMobile(n, intent.Context) == "" {
			return Deny("recipient has no mobile number")
		}
	}
	return Allow()
}

// RecipientPreferenceGuard denies channels when the recipient opted out of
// the notification's category. Recipients without preferences always pass.
type RecipientPreferenceGuard struct{}

// Name implements Guard.
func (RecipientPreferenceGuard) Name() string { return GuardRecipientPreference }

// Check implements Guard.
func (RecipientPreferenceGuard) Check(_ context.Context, n Notifiable, _ string, _ *storage.Template, intent Intent) Verdict {
	pc, ok := n.(PreferenceChecker)
	if !ok {
		return Allow()
	}
	category := Category(intent.Code)
	if !pc.WantsNotification(category) {
		return Deny(fmt.Sprintf("recipient opted out of %q", category))
	}
	return Allow()
}

// GuardDeps are the collaborators the reference guards need.
type GuardDeps struct {
	Builders *BuilderRegistry
	Channels *channel.Registry
}

// NewGuards builds the chain named by ids, in order. Unknown ids are an error.
func NewGuards(ids []string, deps GuardDeps) ([]Guard, error) {
	guards := make([]Guard, 0, len(ids))
	for _, id := range ids {
		switch id {
		case GuardBuilderAvailability:
			guards = append(guards, BuilderAvailabilityGuard{Builders: deps.Builders})
		case GuardSystemCapability:
			guards = append(guards, SystemCapabilityGuard{Channels: deps.Channels})
		case GuardContactInformation:
			guards = append(guards, ContactInformationGuard{})
		case GuardRecipientPreference:
			guards = append(guards, RecipientPreferenceGuard{})
		default:
			return nil, fmt.Errorf("unknown guard %q", id)
		}
	}
	return guards, nil
}
