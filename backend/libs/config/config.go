package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// FileEnv names the variable pointing at an optional YAML config file.
	FileEnv = "CONFIG_FILE"
	// DotEnvFileEnv names an optional dotenv file; ".env" when unset.
	DotEnvFileEnv = "ENV_FILE"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Validator is implemented by config structs that check themselves after loading.
type Validator interface {
	Validate() error
}

// LoadConfig fills target from the YAML file named by CONFIG_FILE (if set) and then
// applies environment overrides. Env keys are derived from the field path
// (PARENT_CHILD) unless the field carries an explicit `env:"KEY"` tag; `env:"-"`
// opts a field out. Values already present in target act as defaults.
func LoadConfig(target interface{}) error {
	if target == nil {
		return errors.New("config: target is nil")
	}

	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return errors.New("config: target must be pointer to struct")
	}

	if err := loadDotEnv(); err != nil {
		return err
	}

	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		if err := loadFile(path, target); err != nil {
			return err
		}
	}

	if err := applyEnv(val.Elem(), ""); err != nil {
		return err
	}

	if v, ok := target.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// loadDotEnv fills unset variables from a dotenv file. A missing file is ignored and
// variables already in the environment win.
func loadDotEnv() error {
	path := strings.TrimSpace(os.Getenv(DotEnvFileEnv))
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: load %s: %w", path, err)
}

func loadFile(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("config: decode yaml %s: %w", path, err)
	}
	return nil
}

func applyEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		meta := t.Field(i)
		if !field.CanSet() {
			continue
		}

		if meta.Anonymous && field.Kind() == reflect.Struct {
			if err := applyEnv(field, prefix); err != nil {
				return err
			}
			continue
		}

		tag := meta.Tag.Get("env")
		if tag == "-" {
			continue
		}

		key := envKey(prefix, meta.Name)
		if tag != "" {
			key = envKey("", tag)
		}

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := applyEnv(field, key); err != nil {
				return err
			}
			continue
		}

		raw, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := setValue(field, strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("config: parse %s: %w", key, err)
		}
	}
	return nil
}

func envKey(prefix, name string) string {
	name = strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

func setValue(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}
