package config

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
)

// Targets is an ordered list of command templates. Templates may contain
// {player} and {faction} placeholders.
type Targets struct {
	Commands []string `json:"commands" mapstructure:"commands"`
}

// RewardProfile is a named pair of win and loss command lists.
type RewardProfile struct {
	Name        string  `json:"name" mapstructure:"name"`
	Description string  `json:"description" mapstructure:"description"`
	Win         Targets `json:"win" mapstructure:"win"`
	Loss        Targets `json:"loss" mapstructure:"loss"`
}

// DefaultReward is used when the config defines no "default" profile.
var DefaultReward = RewardProfile{
	Name:        "default",
	Description: "The default set of rewards",
	Win:         Targets{Commands: []string{"f powerboost f {faction} 50"}},
	Loss:        Targets{Commands: []string{"f powerboost f {faction} reset"}},
}

// Settings are the gameplay values that can be reloaded at runtime.
type Settings struct {
	TickInterval  time.Duration
	WarpWarmUp    time.Duration
	WallStrength  int
	WildernessID  string
	WildernessTag string
	Rewards       map[string]RewardProfile
}

// Reward looks up a profile by case-insensitive name.
func (s *Settings) Reward(name string) (RewardProfile, bool) {
	r, ok := s.Rewards[strings.ToLower(name)]
	return r, ok
}

// RewardNames lists the configured profile keys.
func (s *Settings) RewardNames() []string {
	names := make([]string, 0, len(s.Rewards))
	for name := range s.Rewards {
		names = append(names, name)
	}
	return names
}

// GetSettings builds Settings from the current viper state.
func GetSettings() (*Settings, error) {
	s := &Settings{
		TickInterval:  viper.GetDuration("castles.tickInterval"),
		WarpWarmUp:    time.Duration(viper.GetInt("castles.warpWarmUp")) * time.Second,
		WallStrength:  viper.GetInt("castles.wallStrength"),
		WildernessID:  viper.GetString("castles.wildernessId"),
		WildernessTag: viper.GetString("castles.wildernessTag"),
	}
	if s.TickInterval <= 0 {
		return nil, fmt.Errorf("castles.tickInterval must be positive, got %s", s.TickInterval)
	}

	var raw map[string]RewardProfile
	if err := viper.UnmarshalKey("rewards", &raw); err != nil {
		return nil, fmt.Errorf("error decoding rewards: %w", err)
	}

	s.Rewards = make(map[string]RewardProfile, len(raw)+1)
	for name, profile := range raw {
		key := strings.ToLower(name)
		if profile.Name == "" {
			profile.Name = key
		}
		s.Rewards[key] = profile
	}
	if _, ok := s.Rewards[DefaultReward.Name]; !ok {
		s.Rewards[DefaultReward.Name] = DefaultReward
	}

	return s, nil
}

// SettingsStore holds the active Settings. Readers never block a reload.
type SettingsStore struct {
	current atomic.Pointer[Settings]
	reread  func() error
}

// NewSettingsStore creates a store holding s. Reload re-reads the config file.
func NewSettingsStore(s *Settings) *SettingsStore {
	store := &SettingsStore{reread: Reread}
	store.current.Store(s)
	return store
}

// Get returns the active settings.
func (st *SettingsStore) Get() *Settings {
	return st.current.Load()
}

// Set replaces the active settings.
func (st *SettingsStore) Set(s *Settings) {
	st.current.Store(s)
}

// Reload re-reads the config file and swaps the active settings.
// The previous settings stay active when reading or decoding fails.
func (st *SettingsStore) Reload() (*Settings, error) {
	if st.reread != nil {
		if err := st.reread(); err != nil {
			return nil, err
		}
	}
	s, err := GetSettings()
	if err != nil {
		return nil, err
	}
	st.current.Store(s)
	return s, nil
}
