package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/tasks"
)

// ErrTaskParse is returned when the model response holds no parsable
// task array.
var ErrTaskParse = errors.New("failed to parse tasks from model response")

var (
	fencedBlock  = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	bracketArray = regexp.MustCompile(`\[[\s\S]*\]`)
)

// payload picks the JSON text out of a model response: a fenced code block,
// else the first bracketed span, else the whole content. A payload without
// an opening bracket is wrapped into a one-element array.
func payload(content string) string {
	content = strings.TrimSpace(content)

	var p string
	if m := fencedBlock.FindStringSubmatch(content); m != nil {
		p = m[1]
	} else if m := bracketArray.FindString(content); m != "" {
		p = m
	} else {
		p = content
	}
	if !strings.Contains(p, "[") {
		p = "[" + p + "]"
	}
	return p
}

// ParseTasks turns model content into task records stamped with now.
// Objects without a description are dropped and unparsable due dates are
// cleared.
func ParseTasks(content string, now time.Time) ([]tasks.Record, error) {
	var raw []tasks.Record
	if err := json.Unmarshal([]byte(payload(content)), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTaskParse, err)
	}

	out := make([]tasks.Record, 0, len(raw))
	for _, r := range raw {
		r.Description = strings.TrimSpace(r.Description)
		r.DueDate = strings.TrimSpace(r.DueDate)
		if errors.Is(r.Validate(), tasks.ErrEmptyDescription) {
			continue
		}
		if errors.Is(r.Validate(), tasks.ErrInvalidDueDate) {
			r.DueDate = ""
		}
		r.CreatedAt = now
		out = append(out, r)
	}
	return out, nil
}
