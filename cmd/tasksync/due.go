package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/tasksync/tasksync/internal/schema"
)

var dueParser = newDueParser()

func newDueParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// parseDue turns a --due value into a due date. Exact dates and RFC3339
// timestamps pass through; anything else is read as natural language
// relative to now and kept at day precision.
func parseDue(text string, now time.Time) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if _, err := schema.ParseDate(text); err == nil {
		return text, nil
	}

	r, err := dueParser.Parse(text, now)
	if err != nil {
		return "", fmt.Errorf("failed to parse due date %q: %w", text, err)
	}
	if r == nil {
		return "", fmt.Errorf("could not understand due date %q", text)
	}
	return r.Time.Format(schema.DateLayout), nil
}
