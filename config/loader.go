// Package config provides configuration loading and management services
package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Static errors for configuration package
var (
	ErrConfigTypeNotFound    = errors.New("config type not found")
	ErrConfigCannotBeNil     = errors.New("config cannot be nil")
	ErrNoProvenanceInfo      = errors.New("no provenance information found for field")
	ErrRequiredFieldNotSet   = errors.New("required field is not set")
	ErrUnsupportedFieldType  = errors.New("unsupported field type for default value")
	ErrUnsupportedSourceType = errors.New("unsupported configuration source type")
	ErrValidationRuleFailed  = errors.New("validation rule failed")
	ErrUnknownRuleType       = errors.New("unknown validation rule type")
)

// Loader implements the ConfigLoader interface: layered sources (TOML,
// YAML, env), struct-tag defaults, and pluggable validators.
type Loader struct {
	sources    []*ConfigSource
	validators []ConfigValidator
	provenance map[string]*FieldProvenance // Track provenance by field path
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		sources:    make([]*ConfigSource, 0),
		validators: make([]ConfigValidator, 0),
		provenance: make(map[string]*FieldProvenance),
	}
}

// Load loads configuration from all configured sources (lowest priority
// first, so a higher-priority source overwrites fields a lower one set),
// fills any field still zero from its `default` tag, and validates the
// result. It is equivalent to Reload except it does not reset provenance
// recorded by a prior Load/Reload call.
func (l *Loader) Load(ctx context.Context, config interface{}) error {
	if config == nil {
		return ErrConfigCannotBeNil
	}
	return l.load(ctx, config)
}

// Reload re-runs Load from scratch, clearing previously recorded
// provenance first so a file edit's new values don't appear alongside
// stale provenance from the source's prior contents.
func (l *Loader) Reload(ctx context.Context, config interface{}) error {
	if config == nil {
		return ErrConfigCannotBeNil
	}
	l.provenance = make(map[string]*FieldProvenance)
	return l.load(ctx, config)
}

func (l *Loader) load(ctx context.Context, config interface{}) error {
	sortedSources := make([]*ConfigSource, len(l.sources))
	copy(sortedSources, l.sources)
	sort.SliceStable(sortedSources, func(i, j int) bool {
		return sortedSources[i].Priority < sortedSources[j].Priority
	})

	for _, source := range sortedSources {
		err := l.loadFromSource(ctx, config, source)
		if err != nil {
			source.Error = err.Error()
			source.Loaded = false
			continue
		}
		now := time.Now()
		source.LastLoaded = &now
		source.Loaded = true
		source.Error = ""
	}

	if err := l.applyDefaults(config); err != nil {
		return fmt.Errorf("applying config defaults: %w", err)
	}

	if err := l.Validate(ctx, config); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	return nil
}

// loadFromSource loads configuration from a specific source, dispatching
// on its declared type. TOML and YAML sources decode their whole file into
// config; an env source overlays $ENV onto fields tagged `env:"NAME"`.
func (l *Loader) loadFromSource(ctx context.Context, config interface{}, source *ConfigSource) error {
	switch source.Type {
	case "toml":
		return l.loadTOML(config, source)
	case "yaml", "yml":
		return l.loadYAML(config, source)
	case "env":
		return l.loadEnv(config, source)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedSourceType, source.Type)
	}
}

// Validate validates the given configuration against defined rules and schemas
func (l *Loader) Validate(ctx context.Context, config interface{}) error {
	// Validate using all configured validators
	for _, validator := range l.validators {
		err := validator.ValidateStruct(ctx, config)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	// Built-in validation: check required fields using reflection
	err := l.validateRequiredFields(config)
	if err != nil {
		return err
	}

	return nil
}

// GetProvenance returns field-level provenance information for configuration
func (l *Loader) GetProvenance(ctx context.Context, fieldPath string) (*FieldProvenance, error) {
	// Look up provenance information for the field path
	if provenance, exists := l.provenance[fieldPath]; exists {
		return provenance, nil
	}

	// If no provenance tracked, return not found error
	return nil, fmt.Errorf("%w: %s", ErrNoProvenanceInfo, fieldPath)
}

// GetSources returns information about all configured configuration sources.
func (l *Loader) GetSources(ctx context.Context) ([]*ConfigSource, error) {
	return l.sources, nil
}

// AddSource adds a configuration source to the loader
func (l *Loader) AddSource(source *ConfigSource) {
	l.sources = append(l.sources, source)
}

// AddValidator adds a configuration validator to the loader
func (l *Loader) AddValidator(validator ConfigValidator) {
	l.validators = append(l.validators, validator)
}

// Validator implements ConfigValidator by running a configurable set of
// ValidationRules against a struct's fields by reflection, keyed by
// configType (a caller-chosen name, typically the struct's type name).
// It is registered with a Loader through AddValidator and runs alongside
// the Loader's own built-in required-field check.
type Validator struct {
	rules map[string][]*ValidationRule
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		rules: make(map[string][]*ValidationRule),
	}
}

// ValidateStruct runs every rule registered for every configType against
// the matching field of config, found by FieldPath.
func (v *Validator) ValidateStruct(ctx context.Context, config interface{}) error {
	rv := reflect.ValueOf(config)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return ErrConfigCannotBeNil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	for _, rules := range v.rules {
		for _, rule := range rules {
			field := fieldByPath(rv, rule.FieldPath)
			if !field.IsValid() {
				continue
			}
			if err := v.ValidateField(ctx, rule.FieldPath, field.Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateField validates value against every rule registered under
// fieldPath across all configTypes, regardless of which type registered it.
func (v *Validator) ValidateField(ctx context.Context, fieldPath string, value interface{}) error {
	for _, rules := range v.rules {
		for _, rule := range rules {
			if rule.FieldPath != fieldPath {
				continue
			}
			if err := applyRule(rule, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyRule evaluates a single ValidationRule against value.
func applyRule(rule *ValidationRule, value interface{}) error {
	fail := func(reason string) error {
		msg := rule.Message
		if msg == "" {
			msg = reason
		}
		return fmt.Errorf("%w: %s: %s", ErrValidationRuleFailed, rule.FieldPath, msg)
	}

	rv := reflect.ValueOf(value)
	switch rule.RuleType {
	case "required":
		if rv.IsZero() {
			return fail("value is required")
		}
	case "min":
		bound, err := ruleBound(rule)
		if err != nil {
			return err
		}
		if n, ok := numericValue(rv); ok && n < bound {
			return fail(fmt.Sprintf("must be >= %v", bound))
		}
	case "max":
		bound, err := ruleBound(rule)
		if err != nil {
			return err
		}
		if n, ok := numericValue(rv); ok && n > bound {
			return fail(fmt.Sprintf("must be <= %v", bound))
		}
	case "pattern":
		pattern, _ := rule.Parameters["pattern"].(string)
		if rv.Kind() == reflect.String && pattern != "" && !strings.Contains(rv.String(), pattern) {
			return fail(fmt.Sprintf("must contain %q", pattern))
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownRuleType, rule.RuleType)
	}
	return nil
}

func ruleBound(rule *ValidationRule) (float64, error) {
	raw, ok := rule.Parameters["value"]
	if !ok {
		return 0, fmt.Errorf("%w: %s rule missing \"value\" parameter", ErrValidationRuleFailed, rule.RuleType)
	}
	switch n := raw.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %s rule has non-numeric \"value\" parameter", ErrValidationRuleFailed, rule.RuleType)
	}
}

func numericValue(rv reflect.Value) (float64, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// fieldByPath resolves a dotted field path ("Database.Port") against rv.
func fieldByPath(rv reflect.Value, path string) reflect.Value {
	for _, part := range strings.Split(path, ".") {
		if rv.Kind() != reflect.Struct {
			return reflect.Value{}
		}
		rv = rv.FieldByName(part)
		if !rv.IsValid() {
			return reflect.Value{}
		}
	}
	return rv
}

// GetValidationRules returns validation rules for the given configuration type
func (v *Validator) GetValidationRules(ctx context.Context, configType string) ([]*ValidationRule, error) {
	rules, exists := v.rules[configType]
	if !exists {
		return nil, ErrConfigTypeNotFound
	}
	return rules, nil
}

// AddRule adds a validation rule for a specific configuration type
func (v *Validator) AddRule(configType string, rule *ValidationRule) {
	if v.rules[configType] == nil {
		v.rules[configType] = make([]*ValidationRule, 0)
	}
	v.rules[configType] = append(v.rules[configType], rule)
}

// Helper methods for the Loader

// applyDefaults applies default values to configuration struct using reflection
func (l *Loader) applyDefaults(config interface{}) error {
	return l.applyDefaultsRecursive(config, "")
}

// validateRequiredFields validates that all required fields are set
func (l *Loader) validateRequiredFields(config interface{}) error {
	return validateRequiredRecursive(config, "")
}

// applyDefaultsRecursive recursively applies defaults to struct fields
func (l *Loader) applyDefaultsRecursive(v interface{}, fieldPath string) error {
	if v == nil {
		return nil
	}

	// Use reflection to inspect the struct
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	if rv.Kind() != reflect.Struct {
		return nil // Only process structs
	}

	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rt.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}

		// Build field path
		currentPath := fieldPath
		if currentPath != "" {
			currentPath += "."
		}
		currentPath += fieldType.Name

		// Check for default tag
		defaultValue := fieldType.Tag.Get("default")
		if defaultValue != "" && field.IsZero() {
			err := setFieldValue(field, defaultValue)
			if err != nil {
				return err
			}

			// Track provenance for this field
			l.provenance[currentPath] = &FieldProvenance{
				FieldPath:    currentPath,
				Source:       "default",
				SourceDetail: "struct-tag:" + fieldType.Name,
				Value:        defaultValue,
				Timestamp:    time.Now(),
				Metadata: map[string]string{
					"field_type": fieldType.Type.String(),
					"tag_value":  defaultValue,
				},
			}
		}

		// Recursively process nested structs
		if field.Kind() == reflect.Struct {
			err := l.applyDefaultsRecursive(field.Addr().Interface(), currentPath)
			if err != nil {
				return err
			}
		} else if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if !field.IsNil() {
				err := l.applyDefaultsRecursive(field.Interface(), currentPath)
				if err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// validateRequiredRecursive recursively validates required fields
func validateRequiredRecursive(v interface{}, fieldPath string) error {
	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	if rv.Kind() != reflect.Struct {
		return nil
	}

	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rt.Field(i)

		// Build field path
		currentPath := fieldPath
		if currentPath != "" {
			currentPath += "."
		}
		currentPath += fieldType.Name

		// Check for required tag
		requiredTag := fieldType.Tag.Get("required")
		if requiredTag == "true" && field.IsZero() {
			return fmt.Errorf("%w: %s", ErrRequiredFieldNotSet, currentPath)
		}

		// Recursively process nested structs
		if field.Kind() == reflect.Struct {
			err := validateRequiredRecursive(field.Addr().Interface(), currentPath)
			if err != nil {
				return err
			}
		} else if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if !field.IsNil() {
				err := validateRequiredRecursive(field.Interface(), currentPath)
				if err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// setFieldValue sets a field value from a string default using reflection
func setFieldValue(field reflect.Value, defaultValue string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(defaultValue)
		if err != nil {
			return fmt.Errorf("parsing duration value %q: %w", defaultValue, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(defaultValue)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		val, err := strconv.ParseInt(defaultValue, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing int value %q: %w", defaultValue, err)
		}
		field.SetInt(val)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		val, err := strconv.ParseUint(defaultValue, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing uint value %q: %w", defaultValue, err)
		}
		field.SetUint(val)
	case reflect.Float32, reflect.Float64:
		val, err := strconv.ParseFloat(defaultValue, 64)
		if err != nil {
			return fmt.Errorf("parsing float value %q: %w", defaultValue, err)
		}
		field.SetFloat(val)
	case reflect.Bool:
		val, err := strconv.ParseBool(defaultValue)
		if err != nil {
			return fmt.Errorf("parsing bool value %q: %w", defaultValue, err)
		}
		field.SetBool(val)
	case reflect.Invalid, reflect.Uintptr, reflect.Complex64, reflect.Complex128,
		reflect.Array, reflect.Chan, reflect.Func, reflect.Interface, reflect.Map,
		reflect.Ptr, reflect.Slice, reflect.Struct, reflect.UnsafePointer:
		// These types are not supported for default values
		return fmt.Errorf("%w: %s", ErrUnsupportedFieldType, field.Kind().String())
	default:
		// Fallback for any other types
		return fmt.Errorf("%w: %s", ErrUnsupportedFieldType, field.Kind().String())
	}
	return nil
}

// RedactSecrets redacts sensitive field values in provenance information
func (l *Loader) RedactSecrets(provenance *FieldProvenance) *FieldProvenance {
	if provenance == nil {
		return nil
	}

	// Create a copy to avoid modifying the original
	redacted := &FieldProvenance{
		FieldPath:    provenance.FieldPath,
		Source:       provenance.Source,
		SourceDetail: provenance.SourceDetail,
		Value:        provenance.Value,
		Timestamp:    provenance.Timestamp,
		Metadata:     make(map[string]string),
	}

	// Copy metadata
	for k, v := range provenance.Metadata {
		redacted.Metadata[k] = v
	}

	// Check if field contains sensitive data
	if isSecretField(provenance.FieldPath) {
		redacted.Value = "[REDACTED]"
		redacted.Metadata["redacted"] = "true"
		redacted.Metadata["redaction_reason"] = "secret_field"
	}

	return redacted
}

// isSecretField determines if a field path contains sensitive information
func isSecretField(fieldPath string) bool {
	// Simple pattern matching for common secret field names
	secretPatterns := []string{
		"password", "secret", "key", "token", "credential",
		"auth", "private", "cert", "ssl", "tls",
	}

	lowerPath := strings.ToLower(fieldPath)
	for _, pattern := range secretPatterns {
		if strings.Contains(lowerPath, pattern) {
			return true
		}
	}

	return false
}
