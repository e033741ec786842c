// Package config loads configuration structs from struct-tag defaults, an
// optional YAML or JSON file, and environment variables, in that order of
// increasing priority.
//
// # Struct Tags
//
//   - `env:"NAME"` maps a field to an environment variable. On a nested
//     struct field the value becomes a prefix for the children.
//   - `envDefault:"value"` is applied when the field is still zero-valued.
//   - `required:"true"` fails loading when the field is zero after all
//     layers have been applied.
//
// File values are decoded through the `yaml` and `json` tags.
//
// # Usage
//
//	var cfg oidc.Config
//	err := config.New().
//	    WithEnvPrefix("OIDC").
//	    WithFile("/etc/resource-server/oidc.yaml").
//	    Load(&cfg)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/stricklysoft-oidc/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Loader resolves configuration layers into a struct. Loader is not safe for
// concurrent use.
type Loader struct {
	envPrefix string
	filePath  string
	lookupEnv func(string) (string, bool)
}

// New returns a Loader reading environment variables only.
func New() *Loader {
	return &Loader{lookupEnv: os.LookupEnv}
}

// WithEnvPrefix prepends prefix and an underscore to every environment
// variable name. The prefix is uppercased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets a .yaml, .yml or .json file to load between defaults and
// environment variables. A missing file is not an error.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithLookup replaces the environment lookup function. It is intended for
// tests and for callers sourcing variables from somewhere other than the
// process environment.
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Load fills cfg, which must be a non-nil pointer to a struct, then checks
// required fields and calls cfg.Validate if cfg implements [Validator].
//
// Loading failures carry [sserr.CodeInternalConfiguration]; missing
// required fields carry [sserr.CodeValidationRequired].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return sserr.Configuration("config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()

	if err := walk(rv, "", applyDefault); err != nil {
		return err
	}
	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}
	if err := walk(rv, l.envPrefix, l.applyEnv); err != nil {
		return err
	}
	return validate(cfg, rv)
}

// MustLoad loads a T and panics on failure. Use it in main where an invalid
// configuration must stop the process.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.Configuration("config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration, "config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return sserr.Configurationf("config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration, "config: failed to parse file %q", l.filePath)
	}
	return nil
}

// fieldFunc is applied to every settable leaf field. prefix is the
// accumulated environment prefix of the enclosing structs.
type fieldFunc func(field reflect.Value, sf reflect.StructField, prefix string) error

// walk visits leaf fields depth-first. A nested struct's env tag extends the
// prefix passed to its children.
func walk(rv reflect.Value, prefix string, fn fieldFunc) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct && sf.Type != durationType {
			if err := walk(field, joinEnv(prefix, sf.Tag.Get("env")), fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(field, sf, prefix); err != nil {
			return err
		}
	}
	return nil
}

func applyDefault(field reflect.Value, sf reflect.StructField, _ string) error {
	def, ok := sf.Tag.Lookup("envDefault")
	if !ok || !field.IsZero() {
		return nil
	}
	if err := setField(field, def); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration, "config: failed to apply default for field %q", sf.Name)
	}
	return nil
}

func (l *Loader) applyEnv(field reflect.Value, sf reflect.StructField, prefix string) error {
	name := sf.Tag.Get("env")
	if name == "" {
		return nil
	}
	key := joinEnv(prefix, name)
	val, ok := l.lookupEnv(key)
	if !ok {
		return nil
	}
	if err := setField(field, val); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration, "config: failed to set field %q from env var %q", sf.Name, key)
	}
	return nil
}

func joinEnv(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "_" + name
	}
}

// setField parses value into field. Supported kinds are string (including
// named string types such as oauth2.Secret), bool, signed integers,
// time.Duration and []string (comma separated, trimmed, empty entries
// dropped).
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		var parts []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(p)
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}
