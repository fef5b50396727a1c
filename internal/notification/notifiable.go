package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shaharia-lab/notifyd/internal/channel"
	"github.com/shaharia-lab/notifyd/internal/storage"
)

// Notifiable types registered by default.
const (
	TypeUser  = "user"
	TypeAdmin = "admin"
)

// ErrUnknownNotifiableType is returned for types with no registered resolver.
var ErrUnknownNotifiableType = errors.New("unknown notifiable type")

// Notifiable is a recipient entity.
type Notifiable interface {
	channel.Recipient
}

// PreferenceChecker is implemented by recipients that can opt out of
// notification categories.
type PreferenceChecker interface {
	WantsNotification(category string) bool
}

// Resolver turns an ID into a Notifiable. It returns nil, nil when the
// entity does not exist.
type Resolver interface {
	Resolve(ctx context.Context, id int64) (Notifiable, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, id int64) (Notifiable, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, id int64) (Notifiable, error) {
	return f(ctx, id)
}

// Resolvers maps a notifiable type tag to its resolver.
type Resolvers map[string]Resolver

// Resolve looks up the resolver for typ and resolves id.
func (r Resolvers) Resolve(ctx context.Context, typ string, id int64) (Notifiable, error) {
	res, ok := r[typ]
	if !ok || res == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNotifiableType, typ)
	}
	return res.Resolve(ctx, id)
}

// Has reports whether typ has a registered resolver.
func (r Resolvers) Has(typ string) bool {
	res, ok := r[typ]
	return ok && res != nil
}

// UserNotifiable is a regular user. Users can opt out of categories.
type UserNotifiable struct {
	User *storage.User
}

// Email returns the user's address.
func (u *UserNotifiable) Email() string { return u.User.Email }

// Mobile returns the user's phone number.
func (u *UserNotifiable) Mobile() string { return u.User.Mobile }

// WantsNotification reports whether the user has not opted out of category.
func (u *UserNotifiable) WantsNotification(category string) bool {
	return !u.User.OptedOut(category)
}

// AdminNotifiable is an administrator. Administrators cannot opt out.
type AdminNotifiable struct {
	User *storage.User
}

// Email returns the administrator's address.
func (a *AdminNotifiable) Email() string { return a.User.Email }

// Mobile returns the administrator's phone number.
func (a *AdminNotifiable) Mobile() string { return a.User.Mobile }

// UserResolver resolves "user" notifiables from the user store.
func UserResolver(store storage.UserStore) Resolver {
	return ResolverFunc(func(ctx context.Context, id int64) (Notifiable, error) {
		u, err := store.GetUser(ctx, id)
		if err != nil || u == nil {
			return nil, err
		}
		return &UserNotifiable{User: u}, nil
	})
}

// AdminResolver resolves "admin" notifiables: users holding the admin role.
func AdminResolver(store storage.UserStore) Resolver {
	return ResolverFunc(func(ctx context.Context, id int64) (Notifiable, error) {
		u, err := store.GetUser(ctx, id)
		if err != nil || u == nil || u.Role != storage.RoleAdmin {
			return nil, err
		}
		return &AdminNotifiable{User: u}, nil
	})
}

// DefaultResolvers registers the user and admin resolvers over store.
func DefaultResolvers(store storage.UserStore) Resolvers {
	return Resolvers{
		TypeUser:  UserResolver(store),
		TypeAdmin: AdminResolver(store),
	}
}

// ContactEmail returns the email address for n, preferring an "email" entry in data.
func ContactEmail(n Notifiable, data map[string]any) string {
	if s := contextString(data, "email"); s != "" {
		return s
	}
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Email())
}

// ContactMobile returns the phone number for n, preferring "mobile" or "phone" in data.
func ContactMobile(n Notifiable, data map[string]any) string {
	for _, key := range []string{"mobile", "phone"} {
		if s := contextString(data, key); s != "" {
			return s
		}
	}
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Mobile())
}

// ContactAddress returns the destination for ch, or "" if ch needs no address.
func ContactAddress(ch string, n Notifiable, data map[string]any) string {
	switch ch {
	case channel.Mail:
		return ContactEmail(n, data)
	case channel.SMS:
		return ContactMobile(n, data)
	}
	return ""
}

// categorySuffixes are trimmed from a code to derive its preference category.
var categorySuffixes = []string{"_html", "_text"}

// Category returns the preference category for a notification code.
func Category(code string) string {
	for _, suffix := range categorySuffixes {
		if strings.HasSuffix(code, suffix) {
			return strings.TrimSuffix(code, suffix)
		}
	}
	return code
}

func contextString(data map[string]any, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return strings.TrimSpace(s)
}
