// Package skills implements discovery of installed skills across an ordered
// list of search roots. A skill is a directory whose SKILL.md entry file
// carries YAML frontmatter naming and describing it. When the same skill name
// exists under several roots, the root searched first wins; later roots never
// override an earlier match.
package skills

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// SkillFileName is the entry file every skill directory must contain.
const SkillFileName = "SKILL.md"

// Origin identifies which kind of search root a skill was found under.
type Origin string

const (
	// OriginProject marks skills found under the repository-local roots.
	OriginProject Origin = "project"
	// OriginGlobal marks skills found under the user-global roots.
	OriginGlobal Origin = "global"
)

// Scope identifies the precedence class of a search root.
type Scope string

const (
	ScopeUniversalProject Scope = "universal-project"
	ScopeUniversalGlobal  Scope = "universal-global"
	ScopeScopedProject    Scope = "scoped-project"
	ScopeScopedGlobal     Scope = "scoped-global"
)

// Skill represents a discovered skill with its metadata
type Skill struct {
	Name        string // Unique name from frontmatter
	Description string // Brief description from frontmatter
	Directory   string // Full path to the skill directory
	Root        string // Search root the skill was found under
	Origin      Origin // Whether the skill is project-local or user-global
	Content     string // Full content of SKILL.md (body, not frontmatter)
}

// Metadata represents the YAML frontmatter in SKILL.md files
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ParseMetadata extracts the frontmatter from SKILL.md content. It returns an
// error when the frontmatter is missing or lacks a name or description; a
// directory whose entry file fails here is not a skill at all.
func ParseMetadata(content []byte) (*Metadata, error) {
	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()

	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return nil, errors.New("missing frontmatter")
	}

	name, _ := metaData["name"].(string)
	description, _ := metaData["description"].(string)

	if name == "" {
		return nil, errors.New("skill name is required in frontmatter")
	}
	if description == "" {
		return nil, errors.New("skill description is required in frontmatter")
	}

	return &Metadata{Name: name, Description: description}, nil
}

// HasValidMetadata reports whether content is a well-formed skill entry file.
func HasValidMetadata(content []byte) bool {
	_, err := ParseMetadata(content)
	return err == nil
}

// ExtractField returns the named frontmatter field, or "" when the content is
// not a valid entry file or the field is absent.
func ExtractField(content []byte, key string) string {
	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()

	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return ""
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return ""
	}

	value, _ := metaData[key].(string)
	return value
}
