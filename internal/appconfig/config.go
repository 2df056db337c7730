package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/boxmux/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	Service       ServiceConfig `mapstructure:"service" yaml:"service"`
	Pty           PtyConfig     `mapstructure:"pty" yaml:"pty"`
	Socket        SocketConfig  `mapstructure:"socket" yaml:"socket"`
	Boxes         []BoxConfig   `mapstructure:"boxes" yaml:"boxes"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ServiceConfig controls core service behavior.
type ServiceConfig struct {
	BufferMaxLines      int `mapstructure:"buffer_max_lines" yaml:"buffer_max_lines"`
	OutputRatePerSecond int `mapstructure:"output_rate_per_second" yaml:"output_rate_per_second"`
	OutputRateCapacity  int `mapstructure:"output_rate_capacity" yaml:"output_rate_capacity"`
}

// PtyConfig configures pseudo-terminal allocation.
type PtyConfig struct {
	Shell string `mapstructure:"shell" yaml:"shell"`
	Rows  int    `mapstructure:"rows" yaml:"rows"`
	Cols  int    `mapstructure:"cols" yaml:"cols"`
}

// SocketConfig configures the control socket.
type SocketConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// BoxConfig describes one box in the layout. The retired thread/pty
// boolean pair is still accepted and migrated to execution_mode at load.
type BoxConfig struct {
	ID             string         `mapstructure:"id" yaml:"id"`
	Title          string         `mapstructure:"title" yaml:"title"`
	Content        []string       `mapstructure:"content" yaml:"content"`
	Script         []string       `mapstructure:"script" yaml:"script"`
	ExecutionMode  string         `mapstructure:"execution_mode" yaml:"execution_mode"`
	Thread         bool           `mapstructure:"thread" yaml:"thread"`
	Pty            bool           `mapstructure:"pty" yaml:"pty"`
	RedirectOutput string         `mapstructure:"redirect_output" yaml:"redirect_output"`
	AppendOutput   bool           `mapstructure:"append_output" yaml:"append_output"`
	WorkingDir     string         `mapstructure:"working_dir" yaml:"working_dir"`
	Choices        []ChoiceConfig `mapstructure:"choices" yaml:"choices"`
}

// ChoiceConfig describes one selectable action within a box.
type ChoiceConfig struct {
	ID             string   `mapstructure:"id" yaml:"id"`
	Content        string   `mapstructure:"content" yaml:"content"`
	Script         []string `mapstructure:"script" yaml:"script"`
	ExecutionMode  string   `mapstructure:"execution_mode" yaml:"execution_mode"`
	Thread         bool     `mapstructure:"thread" yaml:"thread"`
	Pty            bool     `mapstructure:"pty" yaml:"pty"`
	RedirectOutput string   `mapstructure:"redirect_output" yaml:"redirect_output"`
	AppendOutput   bool     `mapstructure:"append_output" yaml:"append_output"`
}

// resolveMode maps the configured mode (or legacy booleans) to an
// ExecutionMode. Legacy fields are consulted only here.
func resolveMode(explicit string, thread, pty bool) (schema.ExecutionMode, error) {
	if trimmed := strings.TrimSpace(explicit); trimmed != "" {
		mode := schema.ExecutionMode(strings.ToLower(trimmed))
		if !mode.Valid() {
			return "", fmt.Errorf("%w: %q", schema.ErrInvalidMode, explicit)
		}
		return mode, nil
	}
	return schema.ExecutionModeFromLegacy(thread, pty), nil
}

// Resolve converts the box definition into a service box spec.
func (b BoxConfig) Resolve() (schema.BoxSpec, error) {
	if strings.TrimSpace(b.ID) == "" {
		return schema.BoxSpec{}, fmt.Errorf("box without id")
	}
	mode, err := resolveMode(b.ExecutionMode, b.Thread, b.Pty)
	if err != nil {
		return schema.BoxSpec{}, fmt.Errorf("box %s: %w", b.ID, err)
	}
	spec := schema.BoxSpec{
		ID:         schema.BoxID(b.ID),
		Title:      b.Title,
		Content:    append([]string(nil), b.Content...),
		Script:     append([]string(nil), b.Script...),
		Mode:       mode,
		RedirectTo: schema.BoxID(b.RedirectOutput),
		Append:     b.AppendOutput,
		WorkingDir: b.WorkingDir,
	}
	for _, choice := range b.Choices {
		if strings.TrimSpace(choice.ID) == "" {
			return schema.BoxSpec{}, fmt.Errorf("box %s: choice without id", b.ID)
		}
		choiceMode, err := resolveMode(choice.ExecutionMode, choice.Thread, choice.Pty)
		if err != nil {
			return schema.BoxSpec{}, fmt.Errorf("box %s choice %s: %w", b.ID, choice.ID, err)
		}
		spec.Choices = append(spec.Choices, schema.ChoiceSpec{
			ID:         schema.ActionID(choice.ID),
			Content:    choice.Content,
			Commands:   append([]string(nil), choice.Script...),
			Mode:       choiceMode,
			RedirectTo: schema.BoxID(choice.RedirectOutput),
			Append:     choice.AppendOutput,
		})
	}
	return spec, nil
}

// ResolveBoxes converts every configured box, rejecting duplicate ids.
func (c Config) ResolveBoxes() ([]schema.BoxSpec, error) {
	seen := make(map[string]struct{}, len(c.Boxes))
	specs := make([]schema.BoxSpec, 0, len(c.Boxes))
	for _, box := range c.Boxes {
		if _, dup := seen[box.ID]; dup {
			return nil, fmt.Errorf("duplicate box id %q", box.ID)
		}
		seen[box.ID] = struct{}{}
		spec, err := box.Resolve()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// ServiceSchema maps the service section onto the core service config.
func (c Config) ServiceSchema() schema.ServiceConfig {
	return schema.ServiceConfig{
		BufferMaxLines:      c.Service.BufferMaxLines,
		OutputRateCapacity:  c.Service.OutputRateCapacity,
		OutputRatePerSecond: c.Service.OutputRatePerSecond,
		PtyRows:             c.Pty.Rows,
		PtyCols:             c.Pty.Cols,
	}
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Service: ServiceConfig{
			BufferMaxLines:      schema.DefaultBufferMaxLines,
			OutputRatePerSecond: schema.DefaultOutputRatePerSecond,
			OutputRateCapacity:  schema.DefaultOutputRateCapacity,
		},
		Pty: PtyConfig{
			Shell: "sh",
			Rows:  schema.DefaultPtyRows,
			Cols:  schema.DefaultPtyCols,
		},
		Socket: SocketConfig{
			Path: filepath.Join(home, ".boxmux", "boxmux.sock"),
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".boxmux", "config.yaml"), nil
}
