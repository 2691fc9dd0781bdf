package dispatch

import (
	"fmt"
	"strings"

	"github.com/teh-hippo/tiny-ntfy-mcp/internal/ntfy"
)

// buildMessage turns a normalized request plus the resolved sequence token
// into the outbound wire message. No validation happens here; the request
// is already clean.
func buildMessage(req *Request, seqID string) ntfy.Message {
	title := req.Title
	if title == "" {
		if req.Stage != nil && req.Total != nil {
			title = fmt.Sprintf("%s (%d/%d)", req.Session, *req.Stage, *req.Total)
		} else {
			title = req.Session
		}
	}

	body := req.Message
	if body == "" {
		var parts []string
		if req.Stage != nil && req.Total != nil {
			parts = append(parts, fmt.Sprintf("Progress: %d/%d", *req.Stage, *req.Total))
		}
		if req.Result != "" {
			parts = append(parts, "Update: "+req.Result)
		}
		if req.Details != "" {
			parts = append(parts, req.Details)
		}
		if req.Next != "" {
			parts = append(parts, "Next: "+req.Next)
		}
		body = strings.Join(parts, "\n")
		if body == "" {
			body = "(no message)"
		}
	}

	headers := map[string]string{
		ntfy.HeaderTitle:    title,
		ntfy.HeaderPriority: req.Priority,
		ntfy.HeaderTags:     strings.Join(allTags(req), ","),
	}
	if seqID != "" {
		headers[ntfy.HeaderSequenceID] = seqID
	}
	if req.Markdown {
		headers[ntfy.HeaderMarkdown] = "yes"
	}
	for hdr, v := range map[string]string{
		ntfy.HeaderClick:    req.Click,
		ntfy.HeaderActions:  req.Actions,
		ntfy.HeaderIcon:     req.Icon,
		ntfy.HeaderAttach:   req.Attach,
		ntfy.HeaderFilename: req.Filename,
		ntfy.HeaderEmail:    req.Email,
		ntfy.HeaderDelay:    req.Delay,
	} {
		if v != "" {
			headers[hdr] = v
		}
	}

	return ntfy.Message{Topic: req.Topic, Body: body, Headers: headers}
}

// allTags merges default, derived and caller tags, first occurrence wins.
func allTags(req *Request) []string {
	tags := []string{"copilot", "computer", statusTag[req.Status]}
	for _, kv := range [...]struct{ key, val string }{
		{"repo", req.Repo},
		{"area", req.Area},
		{"branch", req.Branch},
	} {
		if kv.val != "" {
			tags = append(tags, kv.key+":"+sanitizeTag(kv.val))
		}
	}
	tags = append(tags, req.Tags...)

	seen := make(map[string]bool, len(tags))
	out := tags[:0]
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
