package markdown

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"

	"github.com/parleychat/parley/internal/models"
)

// ToHTML converts a markdown message body to sanitized HTML suitable
// for the chat view.
func ToHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	rendered := string(blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(blackfriday.CommonExtensions)))
	return sanitize(rendered)
}

// RenderTranscript renders a room's message log as an HTML fragment,
// one block per message with author and timestamp, message bodies
// rendered as markdown.
func RenderTranscript(room *models.Room, messages []models.Message) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<section class=\"transcript\" data-room=%q>\n", html.EscapeString(room.ID)))
	b.WriteString(fmt.Sprintf("<h2>%s</h2>\n", html.EscapeString(room.Name)))
	for _, msg := range messages {
		class := "agent"
		switch {
		case msg.IsUser:
			class = "user"
		case msg.IsSystem():
			class = "system"
		}
		b.WriteString(fmt.Sprintf("<article class=%q>\n", class))
		b.WriteString(fmt.Sprintf("<strong>%s</strong> <time>%s</time>\n",
			html.EscapeString(msg.Author), msg.Timestamp.Format("3:04 PM")))
		b.WriteString("<div>" + ToHTML(msg.Text) + "</div>\n")
		b.WriteString("</article>\n")
	}
	b.WriteString("</section>\n")
	return b.String()
}

var (
	paragraphRe = regexp.MustCompile(`<p>(.*?)</p>`)
	codeBlockRe = regexp.MustCompile(`<pre><code(?: class="[^"]*")?>`)
	tagRe       = regexp.MustCompile(`</?([a-zA-Z]+)(?:\s[^>]*)?>`)
	nameRe      = regexp.MustCompile(`</?([a-zA-Z]+)`)
	newlinesRe  = regexp.MustCompile(`\n{3,}`)
)

var supportedTags = map[string]bool{
	"b": true, "i": true, "u": true, "s": true,
	"code": true, "pre": true, "a": true, "br": true,
}

// sanitize reduces blackfriday output to the small tag set the chat
// view supports.
func sanitize(rendered string) string {
	rendered = paragraphRe.ReplaceAllString(rendered, "$1\n")

	rendered = strings.ReplaceAll(rendered, "<strong>", "<b>")
	rendered = strings.ReplaceAll(rendered, "</strong>", "</b>")
	rendered = strings.ReplaceAll(rendered, "<em>", "<i>")
	rendered = strings.ReplaceAll(rendered, "</em>", "</i>")

	rendered = codeBlockRe.ReplaceAllString(rendered, "<pre>")
	rendered = strings.ReplaceAll(rendered, "</code></pre>", "</pre>")

	rendered = strings.ReplaceAll(rendered, "<ul>", "")
	rendered = strings.ReplaceAll(rendered, "</ul>", "")
	rendered = strings.ReplaceAll(rendered, "<ol>", "")
	rendered = strings.ReplaceAll(rendered, "</ol>", "")
	rendered = strings.ReplaceAll(rendered, "<li>", "• ")
	rendered = strings.ReplaceAll(rendered, "</li>", "\n")

	rendered = tagRe.ReplaceAllStringFunc(rendered, func(match string) string {
		tagMatch := nameRe.FindStringSubmatch(match)
		if len(tagMatch) > 1 && supportedTags[strings.ToLower(tagMatch[1])] {
			return match
		}
		return ""
	})

	rendered = newlinesRe.ReplaceAllString(rendered, "\n\n")
	return strings.TrimSpace(rendered)
}
