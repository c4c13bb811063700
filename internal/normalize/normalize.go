// Package normalize turns raw model output into a document that matches a
// schema.Node: defaults filled, numbers coerced, bilingual pairs completed.
// It is the only place untyped JSON is handled.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "agri-pipeline/internal/common/errors"
	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/common/validation"
	"agri-pipeline/internal/schema"
)

// Placeholders for a bilingual variant the model left out.
const (
	UrduFallback    = "اردو ترجمہ دستیاب نہیں ہے"
	EnglishFallback = "English translation not available"
)

const (
	DefaultMinSupplied = 1
	maxLoggedRaw       = 2000
)

type Options struct {
	// MinSupplied is the number of leaf values the model must supply for the
	// output to be accepted. Zero disables the check.
	MinSupplied int
	Now         func() time.Time
}

// Document is the normalized output of one invocation.
type Document struct {
	Data        map[string]interface{}
	Degraded    bool
	Violations  []string
	Supplied    int
	GeneratedAt time.Time
}

type Normalizer struct {
	minSupplied int
	now         func() time.Time
	logger      logger.Logger

	mu         sync.Mutex
	validators map[*schema.Node]*validation.Validator
}

func New(opts Options, log logger.Logger) *Normalizer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MinSupplied < 0 {
		opts.MinSupplied = 0
	}
	return &Normalizer{
		minSupplied: opts.MinSupplied,
		now:         opts.Now,
		logger:      log,
		validators:  make(map[*schema.Node]*validation.Validator),
	}
}

// Normalize parses raw and repairs it against node. Schema violations of the
// raw document are reported on the Document, never returned as errors.
func (n *Normalizer) Normalize(raw string, node *schema.Node) (*Document, error) {
	parsed, err := parseObject(raw)
	if err != nil {
		n.logger.Error("model output is not a JSON object", map[string]interface{}{
			"error": err.Error(),
			"raw":   truncateRaw(raw),
		})
		return nil, apperrors.NewResponseParseError(err)
	}

	violations := n.violations(node, parsed)
	if len(violations) > 0 {
		n.logger.Warn("model output deviates from schema", map[string]interface{}{
			"code":       apperrors.CodeSchemaShapeDegraded,
			"violations": len(violations),
			"first":      violations[0],
		})
	}

	data, supplied := fillObject(node, parsed)
	if supplied < n.minSupplied {
		n.logger.Warn("model output has too little content", map[string]interface{}{
			"supplied": supplied,
			"minimum":  n.minSupplied,
		})
		return nil, apperrors.NewContentInsufficientError(supplied, n.minSupplied)
	}

	generatedAt := n.now().UTC()
	data["generatedAt"] = generatedAt.Format(time.RFC3339Nano)

	return &Document{
		Data:        data,
		Degraded:    len(violations) > 0,
		Violations:  violations,
		Supplied:    supplied,
		GeneratedAt: generatedAt,
	}, nil
}

// Decode converts a normalized document into its typed result.
func Decode[T any](doc *Document) (*T, error) {
	if doc == nil {
		return nil, apperrors.NewResponseParseError(fmt.Errorf("no document"))
	}
	payload, err := json.Marshal(doc.Data)
	if err != nil {
		return nil, apperrors.NewResponseParseError(err)
	}
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, apperrors.NewResponseParseError(err)
	}
	return &out, nil
}

func (n *Normalizer) violations(node *schema.Node, doc map[string]interface{}) []string {
	v, err := n.validator(node)
	if err != nil {
		n.logger.Warn("schema validator unavailable", map[string]interface{}{"error": err.Error()})
		return nil
	}
	res, err := v.Validate(doc)
	if err != nil {
		n.logger.Warn("schema validation failed to run", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if res.Valid {
		return nil
	}
	return res.GetErrorMessages()
}

func (n *Normalizer) validator(node *schema.Node) (*validation.Validator, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if v, ok := n.validators[node]; ok {
		return v, nil
	}
	v, err := validation.NewValidator(schema.ToJSONSchema(node))
	if err != nil {
		return nil, err
	}
	n.validators[node] = v
	return v, nil
}

// CleanJSONBlock strips a markdown code fence around text.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}

func parseObject(raw string) (map[string]interface{}, error) {
	text := CleanJSONBlock(raw)
	if text == "" {
		return nil, fmt.Errorf("empty output")
	}

	var doc map[string]interface{}
	err := json.Unmarshal([]byte(text), &doc)
	if err == nil && doc != nil {
		return doc, nil
	}

	// Prose around the object.
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		var inner map[string]interface{}
		if innerErr := json.Unmarshal([]byte(text[start:end+1]), &inner); innerErr == nil && inner != nil {
			return inner, nil
		}
	}
	if err == nil {
		err = fmt.Errorf("output is not a JSON object")
	}
	return nil, err
}

func truncateRaw(raw string) string {
	runes := []rune(raw)
	if len(runes) <= maxLoggedRaw {
		return raw
	}
	return string(runes[:maxLoggedRaw]) + "..."
}
