// Package dialogue implements the adaptive conversation engine: the phase
// catalog, scoring rubric, reply selection and phase transitions.
package dialogue

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/ashureev/rolesim/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Bucket names understood by the objection classifier.
const (
	BucketConcession = "concession"
	BucketEvidence   = "evidence"
)

// GeneralTopic is assigned to messages that match no topic rule.
const GeneralTopic = "general"

// PhaseEntry is the catalog data for a single phase.
type PhaseEntry struct {
	Candidates []string `yaml:"candidates"`
	Rubric     []string `yaml:"rubric"`
}

// ClosingLines drives the history-dependent closing reply.
type ClosingLines struct {
	StrongMarkers []string `yaml:"strong_markers"`
	Affirmative   string   `yaml:"affirmative"`
	Deferral      string   `yaml:"deferral"`
}

// Bucket is a class of objection answer with its fixed counterpart reply.
type Bucket struct {
	Markers []string `yaml:"markers"`
	Reply   string   `yaml:"reply"`
}

// TopicRule assigns an objection topic to messages containing any keyword.
type TopicRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// EscalatedReplies are the harder counter-replies for a topic.
type EscalatedReplies struct {
	Hard   string `yaml:"hard"`
	Expert string `yaml:"expert"`
}

// Catalog is the static reply and rubric table. Phases is indexed by
// domain.Phase so every phase has exactly one entry.
type Catalog struct {
	Phases     [domain.PhaseCount]PhaseEntry
	Closing    ClosingLines
	Buckets    map[string]Bucket
	Topics     []TopicRule
	Escalation map[string]EscalatedReplies
}

type catalogFile struct {
	Phases     map[string]PhaseEntry       `yaml:"phases"`
	Closing    ClosingLines                `yaml:"closing"`
	Buckets    map[string]Bucket           `yaml:"buckets"`
	Topics     []TopicRule                 `yaml:"topics"`
	Escalation map[string]EscalatedReplies `yaml:"escalation"`
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads and validates a YAML catalog from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes YAML into a validated catalog. Keywords and markers
// are lowercased once here so matching can work on a lowercased message.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		Closing:    f.Closing,
		Buckets:    make(map[string]Bucket, len(f.Buckets)),
		Escalation: f.Escalation,
	}
	for name, entry := range f.Phases {
		p, err := domain.ParsePhase(name)
		if err != nil {
			return nil, &ConfigurationError{Phase: -1, Reason: err.Error()}
		}
		entry.Rubric = lowerAll(entry.Rubric)
		c.Phases[p] = entry
	}
	c.Closing.StrongMarkers = lowerAll(c.Closing.StrongMarkers)
	for name, b := range f.Buckets {
		b.Markers = lowerAll(b.Markers)
		c.Buckets[strings.ToLower(name)] = b
	}
	for _, rule := range f.Topics {
		rule.Keywords = lowerAll(rule.Keywords)
		c.Topics = append(c.Topics, rule)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that every phase can be scored and answered.
func (c *Catalog) Validate() error {
	for _, p := range domain.AllPhases() {
		entry := c.Phases[p]
		if len(entry.Rubric) == 0 {
			return configErr(p, "rubric is empty")
		}
		if p == domain.Closing {
			continue
		}
		if len(entry.Candidates) == 0 {
			return configErr(p, "no candidate utterances")
		}
		if slices.Contains(entry.Candidates, "") {
			return configErr(p, "empty candidate utterance")
		}
	}
	if c.Closing.Affirmative == "" || c.Closing.Deferral == "" {
		return configErr(domain.Closing, "affirmative and deferral lines are required")
	}
	for name, b := range c.Buckets {
		if b.Reply == "" || len(b.Markers) == 0 {
			return configErr(domain.Objections, "bucket %q needs markers and a reply", name)
		}
	}
	for _, rule := range c.Topics {
		if rule.Name == "" || len(rule.Keywords) == 0 {
			return configErr(domain.Objections, "topic rule needs a name and keywords")
		}
	}
	return nil
}

// Entry returns the catalog row for p.
func (c *Catalog) Entry(p domain.Phase) (PhaseEntry, error) {
	if !p.Valid() {
		return PhaseEntry{}, invalidInput("phase", "%d is not a conversation phase", int(p))
	}
	return c.Phases[p], nil
}
