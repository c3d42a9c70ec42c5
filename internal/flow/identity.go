package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/signon/internal/observability/logger"
	"github.com/dropDatabas3/signon/internal/provider"
)

// assemble maps the raw profile into the (User, Account) pair.
//
// The profile-mapping hook is application code running on provider-shaped
// data, so it is isolated here: an error or panic is logged with the raw
// profile and the flow completes without a user/account instead of crashing
// the request pipeline. The caller cannot tell "provider sent garbage" apart
// from legitimate partial flows, so neither outcome is allowed to be fatal.
func (h *Handler) assemble(ctx context.Context, p *provider.Config, prof provider.Profile, ts provider.TokenSet) (*User, *Account) {
	log := logger.From(ctx).With(logger.Component("flow.identity"), logger.Provider(p.ID))

	mapped, err := runProfileHook(p, prof, ts)
	if err != nil || mapped == nil {
		if err == nil {
			err = fmt.Errorf("profile hook returned nil user")
		}
		perr := &Error{Kind: KindProfileParse, Provider: p.ID, ProviderType: p.Type, Msg: "profile mapping failed", Err: err}
		log.Error("profile mapping failed, continuing without user",
			logger.Err(perr),
			logger.Any("profile", prof),
		)
		return nil, nil
	}

	user := &User{
		ID:    h.newID(),
		Name:  mapped.Name,
		Email: strings.ToLower(mapped.Email),
		Image: mapped.Image,
	}

	accountID := mapped.ID
	if accountID == "" {
		accountID = h.newID()
	}
	account := &Account{
		Provider:          p.ID,
		Type:              string(p.Type),
		ProviderAccountID: accountID,
		Tokens:            ts,
	}
	return user, account
}

// runProfileHook invokes the mapping hook with panic isolation.
func runProfileHook(p *provider.Config, prof provider.Profile, ts provider.TokenSet) (mapped *provider.MappedUser, err error) {
	defer func() {
		if r := recover(); r != nil {
			mapped, err = nil, fmt.Errorf("profile hook panicked: %v", r)
		}
	}()

	hook := p.Hooks.Profile
	if hook == nil {
		hook = provider.DefaultProfile
	}
	return hook(prof, ts)
}
