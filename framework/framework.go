package framework

import (
	"arena-harness/runner"
	"strconv"
)

// Framework builds the command lines of the external game framework. The
// framework is a jar started through java; all subcommands share the jar,
// JVM arguments and coordination endpoint.
type Framework struct {
	Java     string
	JavaArgs []string
	Jar      string
	Referee  string
	Engine   string
	Host     string
	Port     int
	// Dir is the working directory every framework process starts in.
	Dir string
}

func (f *Framework) command(name string, sub ...string) runner.Command {
	args := make([]string, 0, len(f.JavaArgs)+2+len(sub))
	args = append(args, f.JavaArgs...)
	args = append(args, "-jar", f.Jar)
	args = append(args, sub...)

	return runner.Command{
		Name: name,
		Path: f.Java,
		Args: args,
		Dir:  f.Dir,
	}
}

// Server binds the coordination port and runs until killed.
func (f *Framework) Server() runner.Command {
	return f.command("server", "server", "-port", strconv.Itoa(f.Port))
}

// Lobby hosts exactly one match configured by configPath.
func (f *Framework) Lobby(configPath, lobbyID string) runner.Command {
	return f.command("lobby",
		"create",
		"-config", configPath,
		"-game", f.Referee,
		"-lobby", lobbyID,
		"-hostname", f.Host,
		"-port", strconv.Itoa(f.Port),
	)
}

// Client joins lobbyID as username and plays a single match.
func (f *Framework) Client(configPath, username, lobbyID string) runner.Command {
	return f.command(username,
		"client",
		"-config", configPath,
		"-username", username,
		"-engine", f.Engine,
		"-game", f.Referee,
		"-hostname", f.Host,
		"-lobby", lobbyID,
		"-port", strconv.Itoa(f.Port),
	)
}
