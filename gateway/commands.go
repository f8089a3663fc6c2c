package gateway

import "strings"

// Command names accepted after the prefix.
const (
	CmdBar     = "bar"
	CmdUnbar   = "unbar"
	CmdDrop    = "drop"
	CmdDropAll = "dropall"
	CmdPersist = "persist"
	CmdIdle    = "idle"
	CmdSleep   = "sleep"
	CmdAwake   = "awake"
	CmdGlobal  = "global"
)

var adminOnly = map[string]bool{
	CmdDropAll: true,
	CmdIdle:    true,
	CmdSleep:   true,
	CmdAwake:   true,
	CmdGlobal:  true,
}

var known = map[string]bool{
	CmdBar: true, CmdUnbar: true, CmdDrop: true, CmdDropAll: true, CmdPersist: true,
	CmdIdle: true, CmdSleep: true, CmdAwake: true, CmdGlobal: true,
}

// Command is a parsed text command.
type Command struct {
	Name string
	// Args is the raw remainder after the name, with line breaks preserved.
	Args string
}

// ParseCommand recognizes "<prefix><name> [args]". Names are case
// insensitive; unknown names are not commands.
func ParseCommand(prefix, content string) (Command, bool) {
	if prefix == "" {
		return Command{}, false
	}
	content = strings.TrimLeft(content, " \t")
	rest, ok := strings.CutPrefix(content, prefix)
	if !ok {
		return Command{}, false
	}
	name, args, _ := strings.Cut(rest, " ")
	if nl := strings.IndexByte(name, '\n'); nl >= 0 {
		name, args = name[:nl], name[nl+1:]+" "+args
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if !known[name] {
		return Command{}, false
	}
	return Command{Name: name, Args: strings.TrimSpace(args)}, true
}

// AdminOnly reports whether the command needs an admin.
func (c Command) AdminOnly() bool { return adminOnly[c.Name] }
