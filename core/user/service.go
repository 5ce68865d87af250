package user

import (
	"context"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/event"
	"github.com/trezcool/darasa/services/api"
	"github.com/trezcool/darasa/storage/kv"
)

// Options configures a Service. Conf, Bus, Store and API are required.
type Options struct {
	Conf   *core.Config
	Bus    *event.Bus
	Store  kv.Store
	API    *api.Client
	Logger core.Logger
}

// Service handles the user's own profile, preferences and theme.
// Preferences live in the local store and are mirrored to the server
// best-effort; the local copy is the one the UI reads.
type Service struct {
	conf  *core.Config
	bus   *event.Bus
	store kv.Store
	api   *api.Client
	log   core.Logger
}

func NewService(opts Options) *Service {
	return &Service{
		conf:  opts.Conf,
		bus:   opts.Bus,
		store: opts.Store,
		api:   opts.API,
		log:   opts.Logger,
	}
}

// Profile fetches the account from the server and refreshes the local
// copy.
func (s *Service) Profile(ctx context.Context) (User, error) {
	var resp struct {
		Data User `json:"data"`
	}
	if err := s.api.Get(ctx, api.EndpointProfile, &resp); err != nil {
		return User{}, err
	}
	_ = s.store.SetSecure(kv.KeyUser, resp.Data)
	return resp.Data, nil
}

// UpdateProfile validates and submits profile edits.
func (s *Service) UpdateProfile(ctx context.Context, form UpdateProfileForm) (User, error) {
	if err := form.Validate(); err != nil {
		return User{}, err
	}
	var resp struct {
		Data User `json:"data"`
	}
	if err := s.api.Put(ctx, api.EndpointProfile, form, &resp); err != nil {
		return User{}, err
	}
	_ = s.store.SetSecure(kv.KeyUser, resp.Data)
	s.bus.Publish(event.UserUpdated{UserID: resp.Data.ID})
	return resp.Data, nil
}

// ChangePassword runs the local password policy before the server sees
// anything.
func (s *Service) ChangePassword(ctx context.Context, form ChangePasswordForm) error {
	if err := form.Validate(); err != nil {
		return err
	}
	return s.api.Put(ctx, api.EndpointPassword, form, nil)
}

// UpdateAvatar points the profile at an uploaded image URL.
func (s *Service) UpdateAvatar(ctx context.Context, avatarURL string) (User, error) {
	var resp struct {
		Data User `json:"data"`
	}
	body := map[string]string{"avatar_url": avatarURL}
	if err := s.api.Put(ctx, api.EndpointAvatar, body, &resp); err != nil {
		return User{}, err
	}
	_ = s.store.SetSecure(kv.KeyUser, resp.Data)
	s.bus.Publish(event.UserUpdated{UserID: resp.Data.ID})
	return resp.Data, nil
}

// DeleteAccount removes the account server-side and wipes the local
// store. The session teardown rides on the token-deletion watch.
func (s *Service) DeleteAccount(ctx context.Context, password string) error {
	body := map[string]string{"password": password}
	if err := s.api.Post(ctx, api.EndpointDeleteAccount, body, nil); err != nil {
		return err
	}
	return s.store.Clear()
}

// Preferences returns the locally stored preference bag.
func (s *Service) Preferences() Preferences {
	prefs := Preferences{}
	_ = s.store.Get(kv.KeyPreferences, &prefs)
	return prefs
}

// SetPreference stores one preference locally and mirrors the bag to
// the server best-effort.
func (s *Service) SetPreference(ctx context.Context, key string, value interface{}) {
	prefs := s.Preferences()
	prefs[key] = value
	_ = s.store.Set(kv.KeyPreferences, prefs)
	s.bus.Publish(event.PreferencesChanged{Preferences: prefs})

	if err := s.api.Patch(ctx, api.EndpointProfile, map[string]interface{}{"preferences": prefs}, nil); err != nil {
		s.log.Debug("preference sync failed", err)
	}
}

// Theme returns the stored theme, defaulting to light.
func (s *Service) Theme() string {
	theme := "light"
	_ = s.store.Get(kv.KeyTheme, &theme)
	return theme
}

// SetTheme persists the theme choice locally.
func (s *Service) SetTheme(theme string) {
	_ = s.store.Set(kv.KeyTheme, theme)
	s.bus.Publish(event.ThemeChanged{Theme: theme})
}
