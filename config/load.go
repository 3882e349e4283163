package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every flag's environment variable name
const EnvPrefix = "GFXCORE_"

// Load reads a YAML flag file. Keys missing from the file keep their Default value.
func Load(path string) (Flags, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Flags{}, errors.Wrapf(err, "failed to read flags file %s", path)
	}

	return Parse(data)
}

// Parse decodes YAML flag data over Default
func Parse(data []byte) (Flags, error) {
	flags := Default()
	err := yaml.Unmarshal(data, &flags)
	if err != nil {
		return Flags{}, errors.Wrap(err, "failed to parse flags")
	}

	return flags, nil
}

// Var returns the trimmed value of an environment variable, stripped of surrounding quotes
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// EnvName returns the environment variable that overrides the flag with the given yaml key,
// e.g. enableNullHardware becomes GFXCORE_ENABLE_NULL_HARDWARE
func EnvName(key string) string {
	var builder strings.Builder
	builder.WriteString(EnvPrefix)
	for i, r := range key {
		if unicode.IsUpper(r) && i > 0 {
			builder.WriteByte('_')
		}
		builder.WriteRune(unicode.ToUpper(r))
	}
	return builder.String()
}

// FromEnv applies every GFXCORE_* environment variable that is set on top of base. Values that
// fail to parse are logged and ignored.
func FromEnv(base Flags, logger *slog.Logger) Flags {
	if logger == nil {
		logger = DiscardLogger(nil)
	}

	value := reflect.ValueOf(&base).Elem()
	fieldTypes := value.Type()
	for i := 0; i < fieldTypes.NumField(); i++ {
		key := fieldTypes.Field(i).Tag.Get("yaml")
		envName := EnvName(key)
		raw := Var(envName)
		if raw == "" {
			continue
		}

		field := value.Field(i)
		var err error
		switch field.Kind() {
		case reflect.Bool:
			var b bool
			b, err = strconv.ParseBool(raw)
			if err == nil {
				field.SetBool(b)
			}
		case reflect.Int32:
			var n int64
			n, err = strconv.ParseInt(raw, 0, 32)
			if err == nil {
				field.SetInt(n)
			}
		case reflect.Uint16:
			var n uint64
			n, err = strconv.ParseUint(raw, 0, 16)
			if err == nil {
				field.SetUint(n)
			}
		}

		if err != nil {
			logger.Warn("invalid flag value, using previous", slog.String("variable", envName), slog.String("value", raw))
		}
	}

	return base
}
