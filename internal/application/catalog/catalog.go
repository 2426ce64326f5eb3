// Package catalog loads and validates badge definition catalogs.
// A catalog is a YAML document listing definitions under a "badges" key.
// The default catalog, one definition per built-in rule, is embedded.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
)

//go:embed default_badges.yaml
var defaultCatalog []byte

var (
	validate *validator.Validate

	slugTag   = "slug"
	slugRegex = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*$`)
)

func init() {
	validate = validator.New()

	// Report JSON field names instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(slugTag, func(fl validator.FieldLevel) bool {
		return slugRegex.MatchString(fl.Field().String())
	})
}

// File is the on-disk catalog document.
type File struct {
	Badges []badge.Definition `yaml:"badges"`
}

// Default returns the embedded catalog.
func Default() ([]badge.Definition, error) {
	return Parse(defaultCatalog)
}

// MustDefault returns the embedded catalog and panics if it is invalid.
func MustDefault() []badge.Definition {
	defs, err := Default()
	if err != nil {
		panic(err)
	}
	return defs
}

// LoadFile reads and validates a catalog file.
func LoadFile(path string) ([]badge.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return defs, nil
}

// Parse decodes a catalog document, normalizes and validates every entry.
// Slugs must be unique.
func Parse(data []byte) ([]badge.Definition, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, shared.ErrInvalidDefinition.Wrap(err)
	}
	if len(file.Badges) == 0 {
		return nil, shared.ErrInvalidDefinition.Wrap(errors.New("catalog has no badges"))
	}

	seen := make(map[string]int, len(file.Badges))
	for i := range file.Badges {
		def := &file.Badges[i]
		if err := ValidateDefinition(def); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if j, dup := seen[def.Slug]; dup {
			return nil, shared.ErrInvalidDefinition.Wrap(
				fmt.Errorf("slug %q declared by entries %d and %d", def.Slug, j, i))
		}
		seen[def.Slug] = i
	}

	return file.Badges, nil
}

// ValidateDefinition normalizes def in place and checks its fields.
func ValidateDefinition(def *badge.Definition) error {
	def.Normalize()
	if err := validate.Struct(def); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return shared.ErrInvalidDefinition.Wrap(describe(verrs))
		}
		return shared.ErrInvalidDefinition.Wrap(err)
	}
	return nil
}

// Coverage reports the registered rule slugs with no definition in defs.
func Coverage(registry *badge.Registry, defs []badge.Definition) []string {
	have := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		have[d.Slug] = struct{}{}
	}
	var missing []string
	for _, slug := range registry.Slugs() {
		if _, ok := have[slug]; !ok {
			missing = append(missing, slug)
		}
	}
	return missing
}

func describe(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
