// Package markdown renders model output as the HTML subset Telegram accepts.
package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	paragraphRe = regexp.MustCompile(`<p>(.*?)</p>`)
	codeBlockRe = regexp.MustCompile(`<pre><code(?: class="[^"]*")?>(.*?)</code></pre>`)
	anyTagRe    = regexp.MustCompile(`</?([a-zA-Z]+)(?:\s[^>]*)?>`)
	tagNameRe   = regexp.MustCompile(`</?([a-zA-Z]+)`)
	newlinesRe  = regexp.MustCompile(`\n{3,}`)
)

// Telegram rejects messages containing tags outside this set.
var supportedTags = map[string]bool{
	"b": true, "i": true, "u": true, "s": true,
	"code": true, "pre": true, "a": true, "br": true,
}

var tagRewrites = strings.NewReplacer(
	"<strong>", "<b>", "</strong>", "</b>",
	"<em>", "<i>", "</em>", "</i>",
	"<ul>", "", "</ul>", "",
	"<ol>", "", "</ol>", "",
	"<li>", "• ", "</li>", "\n",
)

// ToTelegramHTML converts markdown to Telegram-compatible HTML
func ToTelegramHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	html := string(blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	html = paragraphRe.ReplaceAllString(html, "$1\n")
	html = tagRewrites.Replace(html)
	html = codeBlockRe.ReplaceAllString(html, "<pre>$1</pre>")
	html = dropUnsupportedTags(html)
	html = newlinesRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}

func dropUnsupportedTags(html string) string {
	return anyTagRe.ReplaceAllStringFunc(html, func(match string) string {
		parts := tagNameRe.FindStringSubmatch(match)
		if len(parts) > 1 && supportedTags[strings.ToLower(parts[1])] {
			return match
		}
		return ""
	})
}
