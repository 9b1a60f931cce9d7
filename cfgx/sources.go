package cfgx

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"strings"

	"github.com/erlorenz/go-prefs/internal/casing"
	"github.com/joho/godotenv"
)

const (
	dockerPath    = "/run/secrets"
	maxSecretSize = 1 << 20 // 1MB - max size for secret files
)

// Default ===================================================================
type defaultSource struct {
	priority int
}

func (s *defaultSource) Priority() int {
	return s.priority
}

func (s *defaultSource) Process(fields map[string]ConfigField) error {
	var allErrs []error

	for _, field := range fields {
		defVal, ok := field.Tag.Lookup(tagDefault)
		if !ok {
			continue
		}
		if err := setField(field, defVal); err != nil {
			allErrs = append(allErrs, fmt.Errorf("default: %w", err))
		}
	}

	if len(allErrs) > 0 {
		return &MultiError{Errors: allErrs}
	}
	return nil
}

// Env ====================================================================
type envSource struct {
	priority int
	prefix   string
	files    []string
}

func (s *envSource) Priority() int {
	return s.priority
}

// dotenv reads the .env files that exist. Later files win.
func (s *envSource) dotenv() (map[string]string, error) {
	var existing []string
	for _, f := range s.files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil, nil
	}
	return godotenv.Read(existing...)
}

func (s *envSource) Process(fields map[string]ConfigField) error {
	var allErrs []error

	fileEnv, err := s.dotenv()
	if err != nil {
		return fmt.Errorf("env files: %w", err)
	}

	for _, field := range fields {

		envName := casing.ToScreamingSnake(field.Path)
		if s.prefix != "" {
			envName = s.prefix + "_" + envName
		}

		// Overwrite with tag
		if tagVal, ok := field.Tag.Lookup(tagEnv); ok {
			envName = tagVal
		}

		// Process environment first, then .env files
		envVal, ok := os.LookupEnv(envName)
		if !ok {
			envVal, ok = fileEnv[envName]
		}
		if !ok {
			continue
		}

		if err := setField(field, envVal); err != nil {
			allErrs = append(allErrs, fmt.Errorf("env %s: %w", envName, err))
		}
	}

	if len(allErrs) > 0 {
		return &MultiError{Errors: allErrs}
	}
	return nil
}

// Flag ===================================================================
type flagSource struct {
	priority int
	opts     Options
}

func (s *flagSource) Priority() int {
	return s.priority
}

// Process registers every field as a string flag and hands the parsed text
// to setField, so flags accept exactly what the other sources accept.
// Boolean fields are registered as boolean flags.
func (s *flagSource) Process(fields map[string]ConfigField) error {
	var allErrs []error

	flags := flag.NewFlagSet(s.opts.ProgramName, s.opts.ErrorHandling)
	flags.SetOutput(io.Discard)

	type flagVal struct {
		field ConfigField
		value flag.Value
	}
	var registered []flagVal

	for _, field := range fields {
		names := []string{casing.ToKebab(field.Path)}
		if tagVal, ok := field.Tag.Lookup(tagFlag); ok {
			names[0] = tagVal
		}
		if short := field.Tag.Get(tagShort); short != "" {
			names = append(names, short)
		}

		v := &textValue{isBool: field.Kind == reflect.Bool}
		for _, name := range names {
			flags.Var(v, name, field.Description)
		}
		registered = append(registered, flagVal{field, v})
	}

	if err := flags.Parse(s.opts.Args); err != nil {
		return fmt.Errorf("failed parsing flags: %w", err)
	}

	for _, r := range registered {
		v := r.value.(*textValue)
		if !v.set {
			continue
		}
		if err := setField(r.field, v.text); err != nil {
			allErrs = append(allErrs, fmt.Errorf("flag: %w", err))
		}
	}

	if len(allErrs) > 0 {
		return &MultiError{Errors: allErrs}
	}
	return nil
}

// textValue is a flag.Value that only records the raw text.
type textValue struct {
	text   string
	set    bool
	isBool bool
}

func (v *textValue) String() string { return v.text }

func (v *textValue) Set(s string) error {
	v.text, v.set = s, true
	return nil
}

// IsBoolFlag lets "-debug" stand for "-debug=true".
func (v *textValue) IsBoolFlag() bool { return v.isBool }

// ====================================================================
// Docker Secrets

// DockerSecretsSource wraps a [FileContentSource].
// It reads the docker secret file at “/run/secrets/<secret_name>“.
// It defaults to snake case based on the struct path.
// Override the name with the tag "dsec".
type DockerSecretsSource struct {
	SecretsPath string
	FileContentSource
}

// Process opens an [os.Root] and calls the underlying [FileContentSource]'s
// Process method with the [os.Root.FS]. A missing secrets directory is not
// an error.
func (s *DockerSecretsSource) Process(structMap map[string]ConfigField) error {
	root, err := os.OpenRoot(s.SecretsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open docker path: %w", err)
	}
	defer root.Close()

	s.FileContentSource.FS = root.FS()
	return s.FileContentSource.Process(structMap)
}

// NewDockerSecretsSource sets a priority of PrioritySecrets (75), a tag of "dsec",
// and a secrets path of `/run/secrets`.
func NewDockerSecretsSource() *DockerSecretsSource {
	return &DockerSecretsSource{
		SecretsPath: dockerPath,
		FileContentSource: FileContentSource{
			PriorityLevel: PrioritySecrets,
			Tag:           tagDockerSecret,
			// Assign the fs.FS in the Process method so we can use os.Root.
		},
	}
}

// FileContentSource reads one value per file. The file name is the snake
// case struct path unless the field carries Tag.
// Do not use this directly, use one of the
// implementations, e.g. DockerSecretsSource.
type FileContentSource struct {
	PriorityLevel int
	Tag           string
	FS            fs.FS
}

// Priority implements [Source].
func (s *FileContentSource) Priority() int {
	return s.PriorityLevel
}

// Process implements [Source].
func (s *FileContentSource) Process(structMap map[string]ConfigField) error {
	if s.FS == nil {
		return fmt.Errorf("process SourceFileContent: fs.FS cannot be nil")
	}

	var allErrs []error

	for name, field := range structMap {

		secretName := casing.ToSnake(name)
		if tagVal, ok := field.Tag.Lookup(s.Tag); ok {
			secretName = tagVal
		}

		secretVal, err := s.read(secretName)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			allErrs = append(allErrs, err)
			continue
		}

		if err := setField(field, secretVal); err != nil {
			allErrs = append(allErrs, fmt.Errorf("file %s: %w", secretName, err))
		}
	}

	if len(allErrs) > 0 {
		return &MultiError{Errors: allErrs}
	}
	return nil
}

func (s *FileContentSource) read(name string) (string, error) {
	file, err := s.FS.Open(name)
	if err != nil {
		return "", err
	}
	defer file.Close()

	// Limit read size to prevent memory exhaustion
	b, err := io.ReadAll(io.LimitReader(file, maxSecretSize+1))
	if err != nil {
		return "", fmt.Errorf("cannot read file %s: %w", name, err)
	}
	if len(b) > maxSecretSize {
		return "", fmt.Errorf("file %s exceeds max size of %d bytes", name, maxSecretSize)
	}
	return strings.TrimSpace(string(b)), nil
}

// ====================================================================
// Lookup

// LookupSource sets fields from a function keyed by struct path, such as
// "Log.Level". It adapts flag parsers that cfgx does not own, e.g. a
// cobra command's flag set. Lookup reports false for names it does not
// know or that were not set.
type LookupSource struct {
	PriorityLevel int
	Lookup        func(path string) (string, bool)
}

// Priority implements [Source].
func (s *LookupSource) Priority() int {
	return s.PriorityLevel
}

// Process implements [Source].
func (s *LookupSource) Process(fields map[string]ConfigField) error {
	if s.Lookup == nil {
		return fmt.Errorf("process LookupSource: Lookup cannot be nil")
	}

	var allErrs []error
	for path, field := range fields {
		raw, ok := s.Lookup(path)
		if !ok {
			continue
		}
		if err := setField(field, raw); err != nil {
			allErrs = append(allErrs, fmt.Errorf("%s: %w", path, err))
		}
	}

	if len(allErrs) > 0 {
		return &MultiError{Errors: allErrs}
	}
	return nil
}
