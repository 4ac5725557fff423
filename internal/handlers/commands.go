package handlers

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bastionmc/castles/internal/castle"
	"github.com/bastionmc/castles/internal/dispatcher"
	"github.com/bastionmc/castles/internal/util"
	"github.com/bastionmc/castles/pkg/core"
)

const (
	msgUnknownCommand = "Unknown command. Use /castle help for a list of commands"
	msgNoPermission   = "You do not have permission to use this command"
	msgPlayersOnly    = "Only players may execute this command"
	msgNoCastle       = "No castle by that name exists"
	msgNoSelection    = "Please select a valid region"
	msgNameTaken      = "A castle by that name already exists"
	msgNoHistory      = "Capture history is not available"
)

// historyLimit is the number of capture events shown by /castle history.
const historyLimit = 10

// command is one entry of the admin command table.
type command struct {
	name        string
	params      []string
	description string
	permission  string
	playerOnly  bool
	// withCastle resolves the first argument to a castle before run.
	withCastle bool
	run        func(actor core.Actor, c *castle.Castle, args []string)
}

func (c *command) usage() string {
	parts := append([]string{"/castle", c.name}, c.params...)
	return strings.Join(parts, " ")
}

// minArgs counts required parameters; optional ones are written [like this].
func (c *command) minArgs() int {
	n := 0
	for _, p := range c.params {
		if strings.HasPrefix(p, "<") {
			n++
		}
	}
	return n
}

func (s *Service) commandTable() map[string]*command {
	list := []*command{
		{name: "help", params: []string{"[command]"}, description: "Lists the help", permission: "castle.help", run: s.help},
		{name: "create", params: []string{"<name>"}, description: "Creates a new castle", permission: "castle.create", playerOnly: true, run: s.create},
		{name: "resize", params: []string{"<castle>"}, description: "Modifies a castle region", permission: "castle.resize", playerOnly: true, withCastle: true, run: s.resize},
		{name: "rename", params: []string{"<castle>", "<name>"}, description: "Renames a castle", permission: "castle.rename", withCastle: true, run: s.rename},
		{name: "delete", params: []string{"<castle>"}, description: "Deletes a castle", permission: "castle.delete", withCastle: true, run: s.delete},
		{name: "list", description: "Lists all castles", permission: "castle.list", run: s.list},
		{name: "info", params: []string{"<castle>"}, description: "Displays castle info", permission: "castle.info", withCastle: true, run: s.info},
		{name: "duration", params: []string{"<castle>", "<seconds>"}, description: "Sets the capture duration", permission: "castle.duration", withCastle: true, run: s.duration},
		{name: "enable", params: []string{"<castle>"}, description: "Enables a castle", permission: "castle.enable", withCastle: true, run: s.enable},
		{name: "disable", params: []string{"<castle>"}, description: "Disables a castle", permission: "castle.disable", withCastle: true, run: s.disable},
		{name: "reward", params: []string{"<castle>", "<reward>"}, description: "Sets the reward", permission: "castle.reward", withCastle: true, run: s.reward},
		{name: "reload", description: "Reloads the settings", permission: "castle.reload", run: s.reload},
		{name: "addwalls", params: []string{"<castle>", "<material>"}, description: "Adds walls", permission: "castle.walls.add", playerOnly: true, withCastle: true, run: s.addWalls},
		{name: "remwalls", params: []string{"<castle>", "<material>"}, description: "Removes walls", permission: "castle.walls.remove", playerOnly: true, withCastle: true, run: s.remWalls},
		{name: "clearwalls", params: []string{"<castle>"}, description: "Clears walls", permission: "castle.walls.clear", withCastle: true, run: s.clearWalls},
		{name: "setwarp", params: []string{"<castle>"}, description: "Sets a castle warp", permission: "castle.warps.set", playerOnly: true, withCastle: true, run: s.setWarp},
		{name: "warp", params: []string{"<castle>"}, description: "Warps to a castle", permission: "castle.warps.use", playerOnly: true, withCastle: true, run: s.warp},
		{name: "history", params: []string{"[castle]"}, description: "Shows recent captures", permission: "castle.history", run: s.history},
	}

	table := make(map[string]*command, len(list))
	for _, c := range list {
		table[c.name] = c
	}
	return table
}

// Console is the actor used for commands typed into the host console. It has
// every permission and no location.
type Console struct{}

func (Console) ID() string                  { return "" }
func (Console) Name() string                { return "CONSOLE" }
func (Console) Location() core.Position     { return core.Position{} }
func (Console) HasPermission(_ string) bool { return true }

func (s *Service) handleCommand(e dispatcher.Event) (any, error) {
	var actor core.Actor = Console{}
	if e.ActorID != "" {
		a, err := s.actor(e)
		if err != nil {
			return nil, err
		}
		actor = a
	}
	s.Execute(actor, e.Args)
	return nil, nil
}

// Execute runs an admin command. args[0] is the command name; an empty
// argument list shows the help.
func (s *Service) Execute(actor core.Actor, args []string) {
	if len(args) == 0 {
		args = []string{"help"}
	}

	cmd, ok := s.commands[strings.ToLower(args[0])]
	if !ok {
		s.send(actor, msgUnknownCommand)
		return
	}
	args = args[1:]

	if !actor.HasPermission(cmd.permission) {
		s.send(actor, msgNoPermission)
		return
	}
	if cmd.playerOnly {
		if _, console := actor.(Console); console {
			s.send(actor, msgPlayersOnly)
			return
		}
	}
	if len(args) < cmd.minArgs() {
		s.send(actor, "Usage: %s", cmd.usage())
		return
	}

	var target *castle.Castle
	if cmd.withCastle {
		c, ok := s.deps.Registry.ByName(args[0])
		if !ok {
			s.send(actor, msgNoCastle)
			return
		}
		target = c
		args = args[1:]
	}

	cmd.run(actor, target, args)
}

func header(title string) string {
	return fmt.Sprintf("---------- [ Castle %s ] ----------", title)
}

func (s *Service) help(actor core.Actor, _ *castle.Castle, args []string) {
	s.send(actor, header("Help"))

	if len(args) > 0 {
		if cmd, ok := s.commands[strings.ToLower(args[0])]; ok {
			s.send(actor, "%s - %s", cmd.usage(), cmd.description)
			return
		}
	}

	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := s.commands[name]
		s.send(actor, "%s - %s", cmd.usage(), cmd.description)
	}
}

// selection returns the region the actor selected, telling the actor when
// there is none.
func (s *Service) selection(actor core.Actor) (core.Region, bool) {
	a, b, ok := s.deps.State.Selection(actor)
	if !ok {
		s.send(actor, msgNoSelection)
		return core.Region{}, false
	}
	region, err := core.NewRegion(a, b)
	if err != nil {
		s.send(actor, "%s", err.Error())
		return core.Region{}, false
	}
	return region, true
}

func (s *Service) create(actor core.Actor, _ *castle.Castle, args []string) {
	region, ok := s.selection(actor)
	if !ok {
		return
	}
	name := args[0]

	_, err := s.deps.Registry.Create(name, region)
	var collision *castle.RegionCollisionError
	switch {
	case errors.As(err, &collision):
		s.send(actor, "%s", collision.Error())
		return
	case errors.Is(err, castle.ErrNameTaken):
		s.send(actor, msgNameTaken)
		return
	case err != nil:
		s.deps.Logger.Error("creating castle", "castle", name, "error", err)
		return
	}

	s.deps.Logger.Info("castle created", "castle", name, "by", actor.Name(), "volume", region.Volume())
	s.send(actor, "Castle %s successfully created", name)
	s.changed()
}

func (s *Service) resize(actor core.Actor, c *castle.Castle, _ []string) {
	region, ok := s.selection(actor)
	if !ok {
		return
	}
	s.deps.Registry.Resize(c.Name(), region)
	s.send(actor, "Castle %s successfully updated", c.Name())
	s.changed()
}

func (s *Service) rename(actor core.Actor, c *castle.Castle, args []string) {
	oldName := c.Name()
	if _, err := s.deps.Registry.Rename(oldName, args[0]); err != nil {
		if errors.Is(err, castle.ErrNameTaken) {
			s.send(actor, msgNameTaken)
		} else {
			s.send(actor, msgNoCastle)
		}
		return
	}
	s.send(actor, "Successfully renamed castle %s to %s", oldName, args[0])
	s.changed()
}

func (s *Service) delete(actor core.Actor, c *castle.Castle, _ []string) {
	s.deps.Registry.Delete(c.Name())
	s.send(actor, "Castle %s successfully deleted", c.Name())
	s.changed()
}

func (s *Service) holder(c *castle.Castle) core.Faction {
	if f, ok := s.deps.State.Faction(c.FactionID()); ok {
		return f
	}
	return s.deps.State.Wilderness()
}

func (s *Service) list(actor core.Actor, _ *castle.Castle, _ []string) {
	s.send(actor, header("List"))
	for i, c := range s.deps.Registry.All() {
		s.send(actor, "%d. %s - Held by %s", i+1, c.Name(), s.holder(c).Tag)
	}
}

func (s *Service) info(actor core.Actor, c *castle.Castle, _ []string) {
	status := "DISABLED"
	if c.Enabled() {
		status = "ENABLED"
	}
	center := c.Region().Center()

	s.send(actor, header("Info | "+c.Name()))
	s.send(actor, "Status: %s", status)
	s.send(actor, "Reward Type: %s", c.RewardType())
	s.send(actor, "Holder: %s", s.holder(c).Tag)
	s.send(actor, "Capture duration: %s", util.FormatLonghand(c.CaptureDuration()))
	s.send(actor, "Location: %s %d,%d,%d", center.World, center.X, center.Y, center.Z)
}

func (s *Service) duration(actor core.Actor, c *castle.Castle, args []string) {
	seconds, err := strconv.Atoi(args[0])
	if err != nil || seconds <= 0 {
		s.send(actor, "Invalid duration %q, expected a positive number of seconds", args[0])
		return
	}
	d := time.Duration(seconds) * time.Second
	c.SetCaptureDuration(d)
	s.send(actor, "Castle %s now has a capture duration of %s", c.Name(), util.FormatLonghand(d))
	s.changed()
}

func (s *Service) enable(actor core.Actor, c *castle.Castle, _ []string) {
	if c.Enabled() {
		s.send(actor, "Castle %s is already enabled", c.Name())
		return
	}
	s.deps.Engine.Enable(c)
	s.deps.Messages.Broadcast(fmt.Sprintf("Castle %s is now running", c.Name()))
	s.send(actor, "Successfully enabled %s", c.Name())
	s.changed()
}

func (s *Service) disable(actor core.Actor, c *castle.Castle, _ []string) {
	if !c.Enabled() {
		s.send(actor, "Castle %s is already disabled", c.Name())
		return
	}
	s.deps.Engine.Disable(c)
	s.deps.Messages.Broadcast(fmt.Sprintf("Castle %s is no longer running", c.Name()))
	s.send(actor, "Successfully disabled %s", c.Name())
	s.changed()
}

func (s *Service) reward(actor core.Actor, c *castle.Castle, args []string) {
	settings := s.deps.Settings.Get()
	profile, ok := settings.Reward(args[0])
	if !ok {
		names := settings.RewardNames()
		sort.Strings(names)
		s.send(actor, "No reward by that name exists. Rewards: %s", strings.Join(names, ", "))
		return
	}
	c.SetRewardType(strings.ToLower(profile.Name))
	s.send(actor, "Castle successfully updated")
	s.changed()
}

func (s *Service) reload(actor core.Actor, _ *castle.Castle, _ []string) {
	settings, err := s.deps.Settings.Reload()
	if err != nil {
		s.deps.Logger.Error("reloading settings", "error", err)
		s.send(actor, "Failed to reload the settings: %v", err)
		return
	}
	s.deps.Registry.ResetWallStrength(settings.WallStrength)
	s.send(actor, "Successfully reloaded the settings")
}

// scan collects the selected blocks of the given material.
func (s *Service) scan(actor core.Actor, material string) (*castle.WallLedger, bool) {
	m := core.Material(strings.ToUpper(strings.TrimSpace(material)))
	if m == "" {
		s.send(actor, "Invalid material specified")
		return nil, false
	}
	region, ok := s.selection(actor)
	if !ok {
		return nil, false
	}
	return castle.ScanWalls(region, m, s.deps.Settings.Get().WallStrength, s.deps.Blocks), true
}

func (s *Service) addWalls(actor core.Actor, c *castle.Castle, args []string) {
	found, ok := s.scan(actor, args[0])
	if !ok {
		return
	}
	added := c.Walls().Add(found)
	s.send(actor, "Successfully added %d blocks to the castle %s's walls", added, c.Name())
	s.changed()
}

func (s *Service) remWalls(actor core.Actor, c *castle.Castle, args []string) {
	found, ok := s.scan(actor, args[0])
	if !ok {
		return
	}
	removed := c.Walls().Remove(found.Positions())
	s.send(actor, "Successfully removed %d blocks from the castle %s's walls", removed, c.Name())
	s.changed()
}

func (s *Service) clearWalls(actor core.Actor, c *castle.Castle, _ []string) {
	c.Walls().Clear()
	s.send(actor, "Successfully cleared all wall blocks for castle %s", c.Name())
	s.changed()
}

func (s *Service) setWarp(actor core.Actor, c *castle.Castle, _ []string) {
	c.SetWarp(actor.Location())
	s.send(actor, "Successfully set the warp for castle %s", c.Name())
	s.changed()
}

// warp checks ownership before handing the request to the scheduler.
func (s *Service) warp(actor core.Actor, c *castle.Castle, _ []string) {
	owns := c.FactionID() == s.deps.State.FactionOf(actor).ID
	if !owns && !actor.HasPermission(core.PermissionWarpUseOthers) {
		s.send(actor, "Only players who own this castle may warp here")
		return
	}
	dest, ok := c.Warp()
	if !ok {
		s.send(actor, "This castle has no warp set")
		return
	}
	s.deps.Warps.Request(actor, dest, c.Name())
}

func (s *Service) history(actor core.Actor, _ *castle.Castle, args []string) {
	if s.deps.History == nil {
		s.send(actor, msgNoHistory)
		return
	}

	name, title := "", "History"
	if len(args) > 0 {
		c, ok := s.deps.Registry.ByName(args[0])
		if !ok {
			s.send(actor, msgNoCastle)
			return
		}
		name, title = c.Name(), "History | "+c.Name()
	}

	events, err := s.deps.History.Captures(name, historyLimit)
	if err != nil {
		s.deps.Logger.Error("reading capture history", "error", err)
		s.send(actor, msgNoHistory)
		return
	}

	s.send(actor, header(title))
	if len(events) == 0 {
		s.send(actor, "No captures recorded")
		return
	}
	for _, ev := range events {
		s.send(actor, "%s %s: %s %s", util.FormatDate(ev.Time), ev.Castle, ev.FactionTag, ev.Outcome)
	}
}
