package reconcile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/membankd/internal/membank"
)

// The marker grammar is the one place document content is lightly
// structured. Task bullets look like:
//
//	- [ ] Fix login flow (task-id: T-7) (status: in-progress) (github-issue: acme/app#42)
//
// Annotations are opaque key-value tokens; everything else on the line
// is free prose. Ambiguous or missing markers surface as warnings,
// never as parse failures.
var (
	bulletPattern     = regexp.MustCompile(`^\s*[-*]\s+\[([ xX])\]\s+(.*)$`)
	annotationPattern = regexp.MustCompile(`\((task-id|status|github-issue):\s*([^)]*)\)`)
)

// ExtractTasks scans a document body for task markers. The returned
// tasks preserve document order; titles have their annotations
// stripped.
func ExtractTasks(source membank.Role, body string) ([]TrackedTask, []Warning) {
	var tasks []TrackedTask
	var warnings []Warning
	seen := map[string]int{}

	for i, line := range strings.Split(body, "\n") {
		lineNo := i + 1
		m := bulletPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		checked := m[1] != " "
		rest := m[2]

		task := TrackedTask{Source: source, Line: lineNo}
		if checked {
			task.Status = StatusDone
		} else {
			task.Status = StatusTodo
		}

		for _, ann := range annotationPattern.FindAllStringSubmatch(rest, -1) {
			key, value := ann[1], strings.TrimSpace(ann[2])
			switch key {
			case "task-id":
				task.ID = value
			case "status":
				status, ok := ParseStatus(value)
				if !ok {
					warnings = append(warnings, Warning{
						Source: source, Line: lineNo,
						Detail: fmt.Sprintf("unrecognized status %q, using checkbox state", value),
					})
					continue
				}
				if checked && status != StatusDone {
					warnings = append(warnings, Warning{
						Source: source, Line: lineNo,
						Detail: fmt.Sprintf("checked task annotated %q, treating as done", status),
					})
					continue
				}
				task.Status = status
			case "github-issue":
				ref, err := ParseRemoteRef(value)
				if err != nil {
					warnings = append(warnings, Warning{
						Source: source, Line: lineNo,
						Detail: fmt.Sprintf("malformed issue reference %q, treating task as unlinked", value),
					})
					continue
				}
				task.Ref = &ref
			}
		}

		task.Title = strings.TrimSpace(annotationPattern.ReplaceAllString(rest, ""))
		if task.ID == "" {
			warnings = append(warnings, Warning{
				Source: source, Line: lineNo,
				Detail: "task bullet without task-id, skipping",
			})
			continue
		}
		if prev, dup := seen[task.ID]; dup {
			warnings = append(warnings, Warning{
				Source: source, Line: lineNo,
				Detail: fmt.Sprintf("duplicate task-id %q (first at line %d), skipping", task.ID, prev),
			})
			continue
		}
		seen[task.ID] = lineNo
		tasks = append(tasks, task)
	}
	return tasks, warnings
}

// AnnotateRemoteRef adds a github-issue annotation to the task bullet
// carrying the given task id and returns the updated body. Adding the
// reference after issue creation is what makes a re-run of the pass
// converge instead of creating the issue again.
func AnnotateRemoteRef(body, taskID string, ref RemoteRef) (string, error) {
	idToken := fmt.Sprintf("(task-id: %s)", taskID)
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if bulletPattern.FindStringSubmatch(line) == nil {
			continue
		}
		if !containsAnnotation(line, "task-id", taskID) {
			continue
		}
		if strings.Contains(line, "(github-issue:") {
			return "", fmt.Errorf("task %q already carries an issue reference", taskID)
		}
		lines[i] = strings.TrimRight(line, " \t") + fmt.Sprintf(" (github-issue: %s)", ref)
		return strings.Join(lines, "\n"), nil
	}
	return "", fmt.Errorf("no task bullet with %s", idToken)
}

func containsAnnotation(line, key, value string) bool {
	for _, ann := range annotationPattern.FindAllStringSubmatch(line, -1) {
		if ann[1] == key && strings.TrimSpace(ann[2]) == value {
			return true
		}
	}
	return false
}
