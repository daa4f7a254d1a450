package registry

import (
	"bytes"
	"fmt"
	"os"
	"reflect"

	"github.com/go-playground/validator/v10"
	mapstructure "github.com/go-viper/mapstructure/v2"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// StringList accepts either a JSON array of strings or a single bare string
// (wrapped into a one-element list). Null decodes to an empty list.
type StringList []string

// RoleConfig is a role definition as written in a manifest.
type RoleConfig struct {
	PromptPath  string     `koanf:"prompt_path"`
	RoleArgs    StringList `koanf:"role_args"`
	Description string     `koanf:"description"`
}

// OutputCapture configures CLIs that write their result to a file instead of
// stdout. FlagTemplate must contain a {path} placeholder.
type OutputCapture struct {
	FlagTemplate string `koanf:"flag_template" validate:"required"`
	Cleanup      *bool  `koanf:"cleanup"`
}

// CleanupEnabled reports whether the temp file should be removed after
// reading. Defaults to true when the manifest does not say.
func (o *OutputCapture) CleanupEnabled() bool {
	return o.Cleanup == nil || *o.Cleanup
}

// ClientConfig is a raw client manifest before internal defaults are applied.
// Custom CLIs (names without internal defaults) must supply command and
// parser; everything else is optional.
type ClientConfig struct {
	Name              string                `koanf:"name" validate:"required"`
	Command           string                `koanf:"command"`
	WorkingDir        string                `koanf:"working_dir"`
	AdditionalArgs    StringList            `koanf:"additional_args"`
	Env               map[string]string     `koanf:"env"`
	TimeoutSeconds    int                   `koanf:"timeout_seconds" validate:"omitempty,min=1"`
	Roles             map[string]RoleConfig `koanf:"roles"`
	OutputToFile      *OutputCapture        `koanf:"output_to_file"`
	Parser            string                `koanf:"parser"`
	InternalArgs      StringList            `koanf:"internal_args"`
	DefaultRolePrompt string                `koanf:"default_role_prompt"`
	Runner            string                `koanf:"runner"`
}

var validate = validator.New()

// readManifest loads and validates one manifest file. A nil config with nil
// error means the file was empty and should be skipped. Malformed JSON and
// schema violations are returned as *ConfigError.
func readManifest(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{File: path, Message: err.Error()}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
		return nil, &ConfigError{File: path, Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if len(k.Keys()) == 0 {
		return nil, nil
	}

	var cfg ClientConfig
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       stringListHook,
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, &ConfigError{File: path, Message: fmt.Sprintf("cannot decode manifest: %v", err)}
	}

	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return nil, &ConfigError{File: path, Field: errs[0].Field(),
				Message: fmt.Sprintf("failed '%s' validation", errs[0].Tag())}
		}
		return nil, &ConfigError{File: path, Message: err.Error()}
	}

	return &cfg, nil
}

var stringListType = reflect.TypeOf(StringList(nil))

// stringListHook wraps a bare string into a StringList so manifests may write
// "args": "--flag" as shorthand for a one-element list.
func stringListHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != stringListType {
		return data, nil
	}
	switch v := data.(type) {
	case nil:
		return StringList{}, nil
	case string:
		return StringList{v}, nil
	}
	return data, nil
}
