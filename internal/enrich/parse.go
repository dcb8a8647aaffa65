package enrich

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Result is the validated outcome of a summarize call.
type Result struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
	Style   string   `json:"style"`
}

var errEmptyReply = errors.New("empty reply")

// ParseReply validates a model reply against the {summary, tags, style}
// shape. It tolerates surrounding whitespace and a markdown code fence but
// nothing else: every field must be present with the right JSON type.
// Tags are trimmed, empty entries are dropped and duplicates removed, keeping
// first-occurrence order.
func ParseReply(reply string) (Result, error) {
	body := stripFence(strings.TrimSpace(reply))
	if body == "" {
		return Result{}, newParseError(reply, errEmptyReply)
	}

	var raw map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&raw); err != nil {
		return Result{}, newParseError(reply, fmt.Errorf("not a JSON object: %w", err))
	}
	if dec.More() {
		return Result{}, newParseError(reply, errors.New("trailing data after JSON object"))
	}
	if raw == nil {
		return Result{}, newParseError(reply, errors.New("reply is JSON null"))
	}

	var (
		res  Result
		errs []error
	)
	if err := requireField(raw, "summary", &res.Summary); err != nil {
		errs = append(errs, err)
	}
	if err := requireField(raw, "tags", &res.Tags); err != nil {
		errs = append(errs, err)
	}
	if err := requireField(raw, "style", &res.Style); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return Result{}, newParseError(reply, errors.Join(errs...))
	}

	res.Tags = normalizeTags(res.Tags)
	return res, nil
}

func requireField(raw map[string]json.RawMessage, name string, dst any) error {
	v, ok := raw[name]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return fmt.Errorf("field %q is missing", name)
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("field %q has the wrong type: %w", name, err)
	}
	return nil
}

// stripFence removes a surrounding ``` or ```json fence.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := s[3 : len(s)-3]
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		// Drop an info string such as "json".
		if !strings.ContainsAny(inner[:nl], "{[\"") {
			inner = inner[nl+1:]
		}
	}
	return strings.TrimSpace(inner)
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
