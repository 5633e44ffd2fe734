package shell

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/keelhaul-sec/keelhaul/internal/profile"
)

// helpEntry matches one line of `help` output: a command name, optionally
// followed by a dash and a summary.
var helpEntry = regexp.MustCompile(`^([a-zA-Z0-9_?]+)\s*-?\s*(.*)$`)

// Commands retrieves the target's command table from its help listing and
// caches it in the profile. The cached table is returned on subsequent
// calls unless refresh is set.
func (d *Dispatcher) Commands(ctx context.Context, refresh bool) (map[string]string, error) {
	if !refresh && len(d.prof.Commands) > 0 {
		return commandTable(d.prof), nil
	}

	resp, err := d.SendCommand(ctx, "help")
	if err != nil {
		return nil, err
	}

	commands := make(map[string]string)
	for _, line := range strings.Split(resp, "\n") {
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			// Indented lines are summary continuations; only the first
			// line of an entry is kept.
			continue
		}
		m := helpEntry.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		commands[m[1]] = strings.TrimSpace(m[2])
	}
	if len(commands) == 0 {
		return nil, &ParseError{Command: "help", Response: resp, Reason: "no command entries found"}
	}

	d.logger.Info("Enumerated target commands", zap.Int("count", len(commands)))
	d.prof.SetCommands(commands)
	return commands, nil
}

// HasCommand reports whether the target supports the named command,
// consulting the cached command table and enumerating it if needed.
func (d *Dispatcher) HasCommand(ctx context.Context, name string) (bool, error) {
	commands, err := d.Commands(ctx, false)
	if err != nil {
		return false, err
	}
	_, ok := commands[name]
	return ok, nil
}

// Environment retrieves the target's environment variables and caches them
// in the profile. The cached environment is returned on subsequent calls
// unless refresh is set.
func (d *Dispatcher) Environment(ctx context.Context, refresh bool) (map[string]string, error) {
	if !refresh && len(d.prof.Env) > 0 {
		return envTable(d.prof), nil
	}

	resp, err := d.SendCommand(ctx, "printenv")
	if err != nil {
		return nil, err
	}

	env := make(map[string]string)
	current := ""
	for _, line := range strings.Split(resp, "\n") {
		if strings.HasPrefix(line, "Environment size:") {
			break
		}
		if name, value, ok := strings.Cut(line, "="); ok && !strings.ContainsAny(name, " \t") {
			env[name] = value
			current = name
			continue
		}
		// Lines without an assignment belong to the previous variable;
		// multi-line values are printed this way.
		if current != "" && line != "" {
			env[current] += "\n" + line
		}
	}
	if len(env) == 0 {
		return nil, &ParseError{Command: "printenv", Response: resp, Reason: "no variables found"}
	}

	d.logger.Info("Read target environment", zap.Int("variables", len(env)))
	d.prof.SetEnv(env)
	return env, nil
}

// EnvVar returns the value of one environment variable, using the cached
// environment when available.
func (d *Dispatcher) EnvVar(ctx context.Context, name string) (string, error) {
	env, err := d.Environment(ctx, false)
	if err != nil {
		return "", err
	}
	value, ok := env[name]
	if !ok {
		return "", fmt.Errorf("environment variable %q is not set on target", name)
	}
	return value, nil
}

// SetEnvVar sets an environment variable on the target and updates the
// cached environment. An empty value deletes the variable. The change is
// not persisted to the target's environment storage; that requires a
// separate saveenv, which is left to the operator.
func (d *Dispatcher) SetEnvVar(ctx context.Context, name, value string) error {
	cmd := fmt.Sprintf("setenv %s %s", name, value)
	if value == "" {
		cmd = "setenv " + name
	}
	if _, err := d.SendCommand(ctx, cmd); err != nil {
		return err
	}

	if value == "" {
		delete(d.prof.Env, name)
	} else if d.prof.Env != nil {
		d.prof.Env[name] = value
	}
	return nil
}

// Version returns the target's version banner, cached in the profile.
func (d *Dispatcher) Version(ctx context.Context) (string, error) {
	if d.prof.Version != "" {
		return d.prof.Version, nil
	}

	resp, err := d.SendCommand(ctx, "version")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(resp, "\n") {
		if strings.TrimSpace(line) != "" {
			d.prof.Version = strings.TrimSpace(line)
			return d.prof.Version, nil
		}
	}
	return "", &ParseError{Command: "version", Response: resp, Reason: "empty banner"}
}

func commandTable(p *profile.Profile) map[string]string {
	out := make(map[string]string, len(p.Commands))
	for name, cmd := range p.Commands {
		out[name] = cmd.Summary
	}
	return out
}

func envTable(p *profile.Profile) map[string]string {
	out := make(map[string]string, len(p.Env))
	for k, v := range p.Env {
		out[k] = v
	}
	return out
}
