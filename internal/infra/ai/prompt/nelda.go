package prompt

import (
	"bytes"
	_ "embed"
	"os"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/samtaplin/llmneldacoding/internal/domain/trigger"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Set holds the prompt templates for one coding run.
type Set struct {
	System     string `yaml:"system"`
	Analysis   string `yaml:"analysis"`
	Extraction string `yaml:"extraction"`
	FollowUp   string `yaml:"follow_up"`

	analysis   *template.Template
	extraction *template.Template
	followUp   *template.Template
}

var funcs = template.FuncMap{"join": strings.Join}

// Default returns the embedded prompt set.
func Default() (*Set, error) {
	return Parse(defaultPrompts)
}

// Load reads a prompt set from a YAML file. Templates missing from the
// file fall back to the embedded defaults.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "prompt: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML prompt set on top of the defaults and compiles it.
func Parse(data []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(defaultPrompts, &s); err != nil {
		return nil, eris.Wrap(err, "prompt: decode defaults")
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "prompt: decode")
	}

	var err error
	if s.analysis, err = template.New("analysis").Funcs(funcs).Parse(s.Analysis); err != nil {
		return nil, eris.Wrap(err, "prompt: parse analysis")
	}
	if s.extraction, err = template.New("extraction").Funcs(funcs).Parse(s.Extraction); err != nil {
		return nil, eris.Wrap(err, "prompt: parse extraction")
	}
	if s.followUp, err = template.New("follow_up").Funcs(funcs).Parse(s.FollowUp); err != nil {
		return nil, eris.Wrap(err, "prompt: parse follow_up")
	}
	return &s, nil
}

// SystemPrompt is the expert framing sent with the free-text call.
func (s *Set) SystemPrompt() string {
	return strings.TrimSpace(s.System)
}

// AnalysisPrompt builds the free-text task for one trigger.
func (s *Set) AnalysisPrompt(req trigger.Request) (string, error) {
	return render(s.analysis, req)
}

// ExtractionPrompt wraps the free-text result for the structured call.
func (s *Set) ExtractionPrompt(analysisText string) (string, error) {
	return render(s.extraction, struct{ AnalysisText string }{analysisText})
}

// FollowUpPrompt asks for only the missing variables, carrying the trigger
// and the original analysis as context.
func (s *Set) FollowUpPrompt(req trigger.Request, analysisText string, missing []string) (string, error) {
	return render(s.followUp, struct {
		trigger.Request
		AnalysisText string
		Missing      []string
	}{req, analysisText, missing})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", eris.Wrapf(err, "prompt: render %s", t.Name())
	}
	return buf.String(), nil
}
