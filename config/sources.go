package config

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// loadTOML decodes source.Location as TOML directly into config, recording
// top-level field provenance for every struct field touched.
func (l *Loader) loadTOML(config interface{}, source *ConfigSource) error {
	if _, err := toml.DecodeFile(source.Location, config); err != nil {
		return fmt.Errorf("loading toml source %s: %w", source.Name, err)
	}
	l.recordFieldProvenance(config, source.Name, source.Location)
	return nil
}

// loadYAML decodes source.Location as YAML directly into config.
func (l *Loader) loadYAML(config interface{}, source *ConfigSource) error {
	data, err := os.ReadFile(source.Location)
	if err != nil {
		return fmt.Errorf("reading yaml source %s: %w", source.Name, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("loading yaml source %s: %w", source.Name, err)
	}
	l.recordFieldProvenance(config, source.Name, source.Location)
	return nil
}

// loadEnv overlays environment variables onto fields tagged `env:"NAME"`,
// coercing the string value to the field's type with golobby/cast. Fields
// without an `env` tag are left untouched.
func (l *Loader) loadEnv(config interface{}, source *ConfigSource) error {
	rv := reflect.ValueOf(config)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return ErrConfigCannotBeNil
	}
	return l.applyEnvRecursive(rv.Elem(), "", source)
}

func (l *Loader) applyEnvRecursive(rv reflect.Value, fieldPath string, source *ConfigSource) error {
	if rv.Kind() != reflect.Struct {
		return nil
	}
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		currentPath := fieldType.Name
		if fieldPath != "" {
			currentPath = fieldPath + "." + currentPath
		}

		if envName := fieldType.Tag.Get("env"); envName != "" {
			if raw, ok := os.LookupEnv(envName); ok {
				if err := setFromEnv(field, raw); err != nil {
					return fmt.Errorf("applying env %s to %s: %w", envName, currentPath, err)
				}
				l.provenance[currentPath] = &FieldProvenance{
					FieldPath:    currentPath,
					Source:       source.Name,
					SourceDetail: envName,
					Value:        raw,
					Timestamp:    time.Now(),
				}
			}
		}

		if field.Kind() == reflect.Struct {
			if err := l.applyEnvRecursive(field, currentPath, source); err != nil {
				return err
			}
		}
	}
	return nil
}

func setFromEnv(field reflect.Value, raw string) error {
	// Durations need ParseDuration, which cast.FromType does not apply.
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
		}
		field.SetInt(int64(d))
		return nil
	}

	converted, err := cast.FromType(raw, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	if !field.CanSet() {
		return fmt.Errorf("%w: %s", ErrUnsupportedFieldType, field.Kind().String())
	}
	field.Set(reflect.ValueOf(converted))
	return nil
}

// recordFieldProvenance records every top-level field of config as sourced
// from name/location, without per-field diffing — sufficient for debug
// display of "which file last touched this struct".
func (l *Loader) recordFieldProvenance(config interface{}, name, location string) {
	rv := reflect.ValueOf(config)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return
	}
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		fieldType := rt.Field(i)
		l.provenance[fieldType.Name] = &FieldProvenance{
			FieldPath:    fieldType.Name,
			Source:       name,
			SourceDetail: location,
			Value:        rv.Field(i).Interface(),
			Timestamp:    time.Now(),
		}
	}
}
