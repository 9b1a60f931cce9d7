// Package cfgx parses configuration into a struct from several sources in
// a fixed precedence order, highest first:
//
//	flags (100) > docker secrets (75) > environment (50) > config files (25) > defaults (0)
//
// Struct tags customize names and validation: default, env, flag, short,
// desc, optional, dsec and key (the dotted name in a config file).
package cfgx

import (
	"cmp"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"reflect"
	"runtime/debug"
	"slices"
	"strings"
)

const (
	tagEnv         = "env"
	tagFlag        = "flag"
	tagDefault     = "default"
	tagDescription = "desc"     // Description for help messages
	tagOptional    = "optional" // Mark field as optional
	tagShort       = "short"    // Short flag in addition
	tagFileKey     = "key"      // Dotted key in a config file

	tagDockerSecret = "dsec"
)

// Priorities of the built-in sources. Custom sources slot in between.
const (
	PriorityDefaults = 0
	PriorityFiles    = 25
	PriorityEnv      = 50
	PrioritySecrets  = 75
	PriorityFlags    = 100
)

var (
	ErrNotPointerToStruct = errors.New("config must be a pointer to a struct")
)

// Source processes the configField map and applies values to the
// config struct. Choose a priority to process before or after other sources.
type Source interface {
	Priority() int
	Process(map[string]ConfigField) error
}

// Parse populates the config struct from different sources. Each source
// overwrites what lower priorities set. Errors from every source are
// collected into a *MultiError.
//
// A top level string field named Version receives the module version from
// the build info unless Options.SkipBuildInfo is set.
func Parse(cfg any, options Options) error {

	// Set default options and override if non-zero
	opts := setOptions(options)

	// Make sure it is pointer to struct
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return handleError(opts.ErrorHandling, ErrNotPointerToStruct)
	}

	// Walk the struct and get map of paths with dot notation
	// Skips any fields that are already populated
	structMap := walkStruct(v.Elem(), "")

	sources := []Source{&defaultSource{priority: PriorityDefaults}}

	if len(opts.Files) > 0 {
		sources = append(sources, &FileSource{PriorityLevel: PriorityFiles, Paths: opts.Files})
	}

	if !opts.SkipEnv {
		sources = append(sources, &envSource{
			priority: PriorityEnv,
			prefix:   opts.EnvPrefix,
			files:    opts.EnvFiles,
		})
	}

	if !opts.SkipFlags {
		sources = append(sources, &flagSource{
			priority: PriorityFlags,
			opts:     opts,
		})
	}

	sources = append(sources, opts.Sources...)

	// Set Version if it exists. Other sources may still override it.
	if version, ok := structMap["Version"]; ok && !opts.SkipBuildInfo && version.Kind == reflect.String {
		v := "(devel)"
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
			v = bi.Main.Version
		}
		version.Value.SetString(v)
	}

	// Stable so sources with equal priority keep their order
	slices.SortStableFunc(sources, func(a, b Source) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})

	var allErrs []error
	for _, source := range sources {
		if err := source.Process(structMap); err != nil {
			allErrs = append(allErrs, err)
		}
	}
	if len(allErrs) > 0 {
		return handleError(opts.ErrorHandling, &MultiError{Errors: allErrs})
	}

	// Validate the required
	if err := validateRequired(structMap); err != nil {
		return handleError(opts.ErrorHandling, fmt.Errorf("validation: %w", err))
	}

	return nil
}

// ConfigField represents a field in the config struct.
type ConfigField struct {
	Path        string
	Value       reflect.Value
	Kind        reflect.Kind
	Name        string
	StructField reflect.StructField
	Tag         reflect.StructTag
	Description string
}

// Gather map of ConfigFields
func walkStruct(v reflect.Value, currPath string) map[string]ConfigField {
	fields := map[string]ConfigField{}

	t := v.Type()

	for i := range v.NumField() {
		fieldVal := v.Field(i)
		structField := t.Field(i)
		name := structField.Name
		kind := fieldVal.Kind()
		tag := structField.Tag

		// Unexported fields cannot be set
		if !structField.IsExported() {
			continue
		}

		// Skip fields already filled
		if !fieldVal.IsZero() {
			continue
		}

		path := name
		if currPath != "" {
			path = currPath + "." + name
		}

		// Recursive for structs
		if kind == reflect.Struct {
			maps.Copy(fields, walkStruct(fieldVal, path))
			continue
		}
		desc := cmp.Or(tag.Get(tagDescription), path)

		fields[path] = ConfigField{
			Path: path, Value: fieldVal, Kind: kind, Name: name, StructField: structField, Tag: tag, Description: desc}
	}
	return fields
}

// Error if required fields are missing
func validateRequired(fields map[string]ConfigField) error {
	var allErrs []error

	for _, path := range slices.Sorted(maps.Keys(fields)) {
		field := fields[path]

		reqVal, exists := field.Tag.Lookup(tagOptional)
		if exists && reqVal != "false" {
			continue
		}

		if field.Value.IsZero() {
			allErrs = append(allErrs, fmt.Errorf("%s is required", path))
		}
	}

	if len(allErrs) > 0 {
		return &MultiError{Errors: allErrs}
	}
	return nil
}

// Handle the errors depending on the strategy
func handleError(errHandling flag.ErrorHandling, err error) error {
	if errHandling == flag.ExitOnError {
		slog.Error("Error parsing config struct.", "error", err)
		os.Exit(1)
	}
	if errHandling == flag.PanicOnError {
		panic(err)
	}

	return err
}

// MultiError holds every error found while parsing.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	msgs := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors occurred:\n- %s", len(m.Errors), strings.Join(msgs, "\n- "))
}

// Unwrap lets errors.Is and errors.As look at every collected error.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}
