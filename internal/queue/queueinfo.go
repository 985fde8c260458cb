package queue

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mforney/docpipe/internal/config"
	"github.com/mforney/docpipe/internal/domain"
)

// QueueInfo is one queue's compiled matching rule. Loaded at startup,
// immutable thereafter.
type QueueInfo struct {
	Name            string
	Pipeline        string
	Extensions      []string
	RequiredFormats []domain.DocumentFormat
	Parameters      map[string]string

	matcher *pipelineMatcher
}

// lookaheadExclusion recognizes the configuration idiom "^(?!name$).*"
// ("any pipeline but name", used to stop a queue re-triggering on its own
// output). RE2 has no lookahead, so the shape is compiled to an exclusion.
var lookaheadExclusion = regexp.MustCompile(`^\^\(\?\!([a-zA-Z0-9_.-]+)\$\)\.\*$`)

// pipelineMatcher matches a source pipeline id against the queue's pipeline
// rule. The empty rule matches everything.
type pipelineMatcher struct {
	re      *regexp.Regexp
	exclude string
}

func compilePipelineMatcher(pattern string) (*pipelineMatcher, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return &pipelineMatcher{}, nil
	}
	if m := lookaheadExclusion.FindStringSubmatch(pattern); m != nil {
		return &pipelineMatcher{exclude: strings.ToLower(m[1])}, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline pattern %q: %w", pattern, err)
	}
	return &pipelineMatcher{re: re}, nil
}

func (m *pipelineMatcher) matches(pipeline domain.PipelineID) bool {
	if m.exclude != "" {
		return !strings.EqualFold(string(pipeline), m.exclude)
	}
	if m.re != nil {
		return m.re.MatchString(string(pipeline))
	}
	return true
}

// NewQueueInfo compiles one queue definition.
// Parameters:
//   - cfg: declarative queue configuration.
// Returns:
//   - *QueueInfo: compiled matching rule.
//   - error: non-nil if the name is empty or the pipeline pattern is invalid.
func NewQueueInfo(cfg config.QueueConfig) (*QueueInfo, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" {
		return nil, fmt.Errorf("queue definition missing name")
	}
	matcher, err := compilePipelineMatcher(cfg.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("queue %s: %w", name, err)
	}

	info := &QueueInfo{
		Name:       name,
		Pipeline:   cfg.Pipeline,
		Parameters: cfg.Parameters,
		matcher:    matcher,
	}
	for _, ext := range splitList(cfg.Extensions) {
		info.Extensions = append(info.Extensions, ext)
	}
	for _, f := range splitList(cfg.Formats) {
		info.RequiredFormats = append(info.RequiredFormats, domain.NewDocumentFormat(f))
	}
	return info, nil
}

// Match evaluates the queue's predicate over a stream event's origin
// pipeline, file extension, and the document's existing format set:
//   - the source pipeline must satisfy the pipeline rule (empty = match-all),
//   - the extension must be in the accepted set (empty = match-all),
//   - every required format must already exist on the document (empty = none).
func (q *QueueInfo) Match(pipeline domain.PipelineID, extension string, formats domain.FormatSet) bool {
	if !q.matcher.matches(pipeline) {
		return false
	}
	if len(q.Extensions) > 0 && !containsFold(q.Extensions, extension) {
		return false
	}
	for _, required := range q.RequiredFormats {
		if !formats.Contains(required) {
			return false
		}
	}
	return true
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, "|") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}
