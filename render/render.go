// Package render turns message text into HTML safe to embed in a page.
package render

import (
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

var policy = bluemonday.UGCPolicy()

// Markdown renders text as markdown and strips anything a user could use to
// inject script or style.
func Markdown(text string) string {
	if text == "" {
		return ""
	}
	unsafe := blackfriday.Run(
		[]byte(text),
		blackfriday.WithExtensions(blackfriday.CommonExtensions|blackfriday.HardLineBreak),
	)
	return string(policy.SanitizeBytes(unsafe))
}
