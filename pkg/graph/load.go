package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Format selects the syntax of a graph document.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// FormatOf picks the format from the file extension. Anything but .json is YAML.
func FormatOf(path string) Format {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads and decodes a graph file. It does not validate it.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	g, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if g.Name == "" {
		g.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	g.BaseDir = filepath.Dir(path)
	return g, nil
}

// Parse decodes a graph document.
func Parse(data []byte, format Format) (*Graph, error) {
	var raw map[string]any
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &raw)
	default:
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return Decode(raw)
}

// Decode builds a graph from an already parsed document. Unknown keys are errors.
func Decode(raw map[string]any) (*Graph, error) {
	var g Graph
	if err := decode(raw, &g, channelHook); err != nil {
		return nil, err
	}
	return &g, nil
}

// DecodeOptions decodes transport options into a config struct such as
// redis.Config. Durations may be written as strings ("250ms").
func DecodeOptions(opts map[string]any, out any) error {
	return decode(opts, out)
}

func decode(in any, out any, hooks ...mapstructure.DecodeHookFunc) error {
	hooks = append(hooks, mapstructure.StringToTimeDurationHookFunc())
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
		DecodeHook:  mapstructure.ComposeDecodeHookFunc(hooks...),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}

// channelHook accepts a bare channel name where a Channel is expected.
func channelHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(Channel{}) {
		return data, nil
	}
	return Channel{Name: data.(string)}, nil
}
