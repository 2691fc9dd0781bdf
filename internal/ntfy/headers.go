package ntfy

import "mime"

// ntfy header names carried on the publish request.
const (
	HeaderTitle      = "X-Title"
	HeaderPriority   = "X-Priority"
	HeaderTags       = "X-Tags"
	HeaderSequenceID = "X-Sequence-ID"
	HeaderMarkdown   = "X-Markdown"
	HeaderClick      = "X-Click"
	HeaderActions    = "X-Actions"
	HeaderIcon       = "X-Icon"
	HeaderAttach     = "X-Attach"
	HeaderFilename   = "X-Filename"
	HeaderEmail      = "X-Email"
	HeaderDelay      = "X-Delay"
)

// headerValue makes a value safe for an HTTP header. ntfy itself accepts
// UTF-8 header bytes, but not every proxy in between does; the ntfy docs
// recommend RFC 2047 encoding for non-latin1 values.
func headerValue(v string) string {
	for _, r := range v {
		if r > 0xFF {
			return mime.BEncoding.Encode("utf-8", v)
		}
	}
	return v
}
