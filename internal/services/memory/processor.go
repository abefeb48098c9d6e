package memory

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/horus-ai-bot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// SourceModelDisclosed tags facts the model wrapped in memory tags.
const SourceModelDisclosed = "model-disclosed"

// The two accepted tag spellings. Go's regexp has no backreferences, so each
// spelling gets its own pattern and matches are merged by position; a
// mismatched pair like <memory>...</store_memory> matches neither, same as
// the paired-tag expression would.
var (
	storeTagRe  = regexp.MustCompile(`(?s)<store_memory>(.*?)</store_memory>`)
	memoryTagRe = regexp.MustCompile(`(?s)<memory>(.*?)</memory>`)

	markupRe = regexp.MustCompile(`<[^>]+>|&[^;]+;`)
	breaksRe = regexp.MustCompile(`[\r\n]+`)
)

// FactSink receives extracted facts. Satisfied by Provider.
type FactSink interface {
	Store(ctx context.Context, userID, content, source string, metadata map[string]models.Value) bool
}

// Processor scans model replies for embedded fact-disclosure tags, persists
// each disclosed fact and strips the markup from the visible reply.
type Processor struct {
	sink   FactSink
	logger *logrus.Logger
}

func NewProcessor(sink FactSink, logger *logrus.Logger) *Processor {
	return &Processor{sink: sink, logger: logger}
}

type tagSpan struct {
	start, end int
	content    string
}

// Process returns the reply with all tag spans removed, plus the sanitized
// fact contents that were stored. With an unknown user the spans are still
// stripped but nothing is persisted.
func (p *Processor) Process(ctx context.Context, reply string, user models.UserInfo) (string, []string) {
	spans := findTagSpans(reply)
	if len(spans) == 0 {
		return reply, nil
	}

	var stored []string
	if user.ID != "" {
		for _, span := range spans {
			content := sanitizeFact(span.content)
			if content == "" {
				continue
			}
			if p.sink.Store(ctx, user.ID, content, SourceModelDisclosed, map[string]models.Value{
				"version": models.String("1.0"),
			}) {
				stored = append(stored, content)
			}
		}
		p.logger.WithFields(logrus.Fields{
			"user_id": user.ID,
			"facts":   len(stored),
		}).Debug("Extracted memory tags from reply")
	}

	return stripSpans(reply, spans), stored
}

// findTagSpans collects non-overlapping matches of both spellings in
// document order. The spellings can nest inside each other; when they do,
// only the outer span is kept, so the regions handed to stripSpans never
// overlap.
func findTagSpans(reply string) []tagSpan {
	var spans []tagSpan
	for _, re := range []*regexp.Regexp{storeTagRe, memoryTagRe} {
		for _, m := range re.FindAllStringSubmatchIndex(reply, -1) {
			spans = append(spans, tagSpan{
				start:   m[0],
				end:     m[1],
				content: reply[m[2]:m[3]],
			})
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	kept := spans[:0]
	prevEnd := 0
	for _, span := range spans {
		if span.start < prevEnd {
			continue
		}
		kept = append(kept, span)
		prevEnd = span.end
	}
	return kept
}

func stripSpans(reply string, spans []tagSpan) string {
	var b strings.Builder
	prev := 0
	for _, span := range spans {
		b.WriteString(reply[prev:span.start])
		prev = span.end
	}
	b.WriteString(reply[prev:])
	return b.String()
}

// sanitizeFact removes embedded markup and HTML entities, collapses line
// breaks to spaces and trims the result.
func sanitizeFact(content string) string {
	content = markupRe.ReplaceAllString(content, "")
	content = breaksRe.ReplaceAllString(content, " ")
	return strings.TrimSpace(content)
}
