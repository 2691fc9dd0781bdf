package dispatch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// statusTag and statusPriority drive the default tag and priority per status.
var statusTag = map[string]string{
	"progress": "loudspeaker",
	"success":  "heavy_check_mark",
	"warning":  "warning",
	"error":    "rotating_light",
	"info":     "information_source",
}

var statusPriority = map[string]string{
	"progress": "low",
	"info":     "default",
	"success":  "high",
	"warning":  "high",
	"error":    "urgent",
}

var namedPriorities = map[string]bool{
	"1": true, "2": true, "3": true, "4": true, "5": true,
	"min": true, "low": true, "default": true, "high": true, "max": true, "urgent": true,
}

// parseRequest validates and normalizes raw tool arguments. Every failure
// wraps ErrInvalidParams and happens before any registry or queue side effect.
func parseRequest(args map[string]any) (*Request, error) {
	session := strings.TrimSpace(stringArg(args, "session"))
	if session == "" {
		return nil, fmt.Errorf("%w: session must be a non-empty string", ErrInvalidParams)
	}

	status := strings.ToLower(strings.TrimSpace(stringArg(args, "status")))
	if status == "" {
		status = "progress"
	}
	if _, ok := statusTag[status]; !ok {
		return nil, fmt.Errorf("%w: status must be one of: progress, success, warning, error, info", ErrInvalidParams)
	}

	stage, err := intArg(args, "stage")
	if err != nil {
		return nil, err
	}
	total, err := intArg(args, "total")
	if err != nil {
		return nil, err
	}

	tags, err := tagsArg(args["tags"])
	if err != nil {
		return nil, err
	}

	priority, err := priorityArg(args["priority"], statusPriority[status])
	if err != nil {
		return nil, err
	}

	delay, err := delayArg(args["delay"])
	if err != nil {
		return nil, err
	}

	update := true
	if v, ok := args["update"]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: update must be a boolean", ErrInvalidParams)
		}
		update = b
	}
	markdown := false
	if v, ok := args["markdown"]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: markdown must be a boolean", ErrInvalidParams)
		}
		markdown = b
	}

	return &Request{
		Session:    session,
		Status:     status,
		Stage:      stage,
		Total:      total,
		Result:     strings.TrimSpace(stringArg(args, "result")),
		Next:       strings.TrimSpace(stringArg(args, "next")),
		Details:    strings.TrimSpace(stringArg(args, "details")),
		Area:       strings.TrimSpace(stringArg(args, "area")),
		Repo:       strings.TrimSpace(stringArg(args, "repo")),
		Branch:     strings.TrimSpace(stringArg(args, "branch")),
		Title:      strings.TrimSpace(stringArg(args, "title")),
		Message:    strings.TrimSpace(stringArg(args, "message")),
		Tags:       tags,
		Priority:   priority,
		Update:     update,
		SequenceID: strings.TrimSpace(stringArg(args, "sequenceId")),
		Topic:      strings.TrimSpace(stringArg(args, "topic")),
		Markdown:   markdown,
		Click:      strings.TrimSpace(stringArg(args, "click")),
		Actions:    strings.TrimSpace(stringArg(args, "actions")),
		Icon:       strings.TrimSpace(stringArg(args, "icon")),
		Attach:     strings.TrimSpace(stringArg(args, "attach")),
		Filename:   strings.TrimSpace(stringArg(args, "filename")),
		Email:      strings.TrimSpace(stringArg(args, "email")),
		Delay:      delay,
	}, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) (*int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		if x != float64(int(x)) {
			return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidParams, key)
		}
		n = int(x)
	default:
		return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidParams, key)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %s must be >= 0", ErrInvalidParams, key)
	}
	return &n, nil
}

// tagsArg accepts a comma-separated string or an array of strings.
func tagsArg(v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		var out []string
		for _, t := range strings.Split(x, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
		return out, nil
	case []any:
		var out []string
		for _, item := range x {
			s, ok := item.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return nil, fmt.Errorf("%w: tags must be a string or array of strings", ErrInvalidParams)
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	case []string:
		out := make([]string, 0, len(x))
		for _, s := range x {
			if strings.TrimSpace(s) == "" {
				return nil, fmt.Errorf("%w: tags must be a string or array of strings", ErrInvalidParams)
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: tags must be a string or array of strings", ErrInvalidParams)
	}
}

// priorityArg accepts 1..5 or the named ntfy priorities; def applies when absent.
func priorityArg(v any, def string) (string, error) {
	switch x := v.(type) {
	case nil:
		return def, nil
	case int, int64, float64:
		var n int
		switch y := x.(type) {
		case int:
			n = y
		case int64:
			n = int(y)
		case float64:
			if y != float64(int(y)) {
				return "", fmt.Errorf("%w: priority int must be 1..5", ErrInvalidParams)
			}
			n = int(y)
		}
		if n < 1 || n > 5 {
			return "", fmt.Errorf("%w: priority int must be 1..5", ErrInvalidParams)
		}
		return strconv.Itoa(n), nil
	case string:
		p := strings.ToLower(strings.TrimSpace(x))
		if p == "" {
			return def, nil
		}
		if !namedPriorities[p] {
			return "", fmt.Errorf("%w: priority must be 1..5 or min/low/default/high/max/urgent", ErrInvalidParams)
		}
		return p, nil
	default:
		return "", fmt.Errorf("%w: priority must be 1..5 or min/low/default/high/max/urgent", ErrInvalidParams)
	}
}

func delayArg(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	default:
		return "", fmt.Errorf("%w: delay must be a string or number", ErrInvalidParams)
	}
}

var tagCleaner = regexp.MustCompile(`[^A-Za-z0-9._:/-]+`)

// sanitizeTag keeps derived tags short and header-safe.
func sanitizeTag(v string) string {
	v = strings.Join(strings.Fields(strings.TrimSpace(v)), "-")
	v = strings.ReplaceAll(v, ",", "-")
	v = tagCleaner.ReplaceAllString(v, "-")
	if len(v) > 64 {
		v = v[:64]
	}
	return v
}
