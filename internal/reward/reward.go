// Package reward expands reward profile templates into console commands.
package reward

import (
	"strings"

	"github.com/bastionmc/castles/internal/config"
	"github.com/bastionmc/castles/pkg/core"
)

const (
	placeholderPlayer  = "{player}"
	placeholderFaction = "{faction}"
)

// Side selects the win or loss targets of a profile.
type Side int

const (
	Win Side = iota
	Loss
)

func (s Side) String() string {
	if s == Win {
		return "win"
	}
	return "loss"
}

// Expand renders one template for faction. Templates referencing {player} produce
// one command per member; others produce exactly one.
func Expand(template string, faction core.Faction) []string {
	if !strings.Contains(template, placeholderPlayer) {
		return []string{strings.ReplaceAll(template, placeholderFaction, faction.ComparisonTag)}
	}

	out := make([]string, 0, len(faction.Members))
	for _, member := range faction.Members {
		r := strings.NewReplacer(placeholderPlayer, member, placeholderFaction, faction.ComparisonTag)
		out = append(out, r.Replace(template))
	}
	return out
}

// Commands expands every template on the chosen side of profile, in order.
func Commands(profile config.RewardProfile, side Side, faction core.Faction) []string {
	targets := profile.Win
	if side == Loss {
		targets = profile.Loss
	}

	var out []string
	for _, template := range targets.Commands {
		out = append(out, Expand(template, faction)...)
	}
	return out
}

// Dispatcher runs expanded reward commands through an executor.
type Dispatcher struct {
	executor core.CommandExecutor
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(executor core.CommandExecutor) *Dispatcher {
	return &Dispatcher{executor: executor}
}

// Dispatch executes the side of profile for faction and returns the commands sent.
func (d *Dispatcher) Dispatch(profile config.RewardProfile, side Side, faction core.Faction) []string {
	commands := Commands(profile, side, faction)
	for _, c := range commands {
		d.executor.Execute(c)
	}
	return commands
}
