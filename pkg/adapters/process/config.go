package process

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// DefaultStopTimeout is how long Terminate waits after the interrupt before killing.
const DefaultStopTimeout = 5 * time.Second

// Config describes how to launch a model process.
type Config struct {
	Name    string            `yaml:"name" json:"name" mapstructure:"name"`
	Command string            `yaml:"command" json:"command" mapstructure:"command"`
	Args    []string          `yaml:"args" json:"args" mapstructure:"args"`
	Env     map[string]string `yaml:"env" json:"env" mapstructure:"env"`
	Dir     string            `yaml:"dir" json:"dir" mapstructure:"dir"`
}

// Validate checks that the config can be started.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("process: %w", ErrNoName)
	}
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("process %s: %w", c.Name, ErrNoCommand)
	}
	return nil
}

// pairs renders env as sorted KEY=VALUE strings.
func pairs(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}
	return out
}
