// Package extract turns collaborator-parsed document text into numbered
// question records. Segmentation is anchored on printed question numbers;
// it is a heuristic over inconsistently formatted source documents, so the
// contract is bounded behavior (no crash, no duplicate records), not
// perfect recall.
package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"examtrainer/internal/model"
)

// Page is one page of text produced by the text-extraction collaborator.
// FigureLines are zero-based line offsets within Text where the parser
// reported an embedded image or figure.
type Page struct {
	Text        string
	FigureLines []int
}

// TextExtractor is the consumed document-parsing collaborator. The core
// does not implement OCR or layout analysis.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) ([]Page, error)
}

// Anchor formats seen across real exam papers: "12.", "12)", "- 12.",
// "(12)", "[12]", "Q12.", "Question 12". The number must open the line;
// "Figure 3" or an inline "see item 4." never starts a record.
var anchorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*(\d{1,3})\.\s+`),
	regexp.MustCompile(`^\s*-\s*(\d{1,3})\.\s+`),
	regexp.MustCompile(`^\s*(\d{1,3})\)\s+`),
	regexp.MustCompile(`^\s*-\s*(\d{1,3})\)\s+`),
	regexp.MustCompile(`^\s*(\d{1,3})\.\s*$`),
	regexp.MustCompile(`^\s*\((\d{1,3})\)\s+`),
	regexp.MustCompile(`^\s*\[(\d{1,3})\]\s+`),
	regexp.MustCompile(`(?i)^\s*(?:question|q)\s*(\d{1,3})\s*[.)]?\s+`),
}

var (
	figureRefRe = regexp.MustCompile(`(?i)\b(?:figure|diagram|chart|image|screenshot)\s+(?:below|above)\b|\b(?:following|see(?:\s+the)?)\s+(?:figure|diagram|chart|image)\b`)
	answerRe    = regexp.MustCompile(`(?i)^\s*(?:answer|ans)\s*[:.]\s*(\S.*)$`)
)

// Questions segments pages into question records. A record spans from its
// anchor line to the line before the next anchor (or document end); text
// before the first anchor is discarded. Non-monotonic anchor sequences are
// accepted in document order, but a number repeated within the same
// document keeps only its first occurrence.
func Questions(pages []Page) []model.Question {
	lines, figureLines := flatten(pages)

	type block struct {
		number int
		start  int
		end    int // exclusive
	}

	var blocks []block
	seen := make(map[int]bool)
	for i, line := range lines {
		num, ok := matchAnchor(line)
		if !ok {
			continue
		}
		if seen[num] {
			// Repeated number: its lines fold into the current block
			// rather than emitting a colliding record.
			continue
		}
		if len(blocks) > 0 {
			blocks[len(blocks)-1].end = i
		}
		seen[num] = true
		blocks = append(blocks, block{number: num, start: i, end: len(lines)})
	}

	var questions []model.Question
	for _, b := range blocks {
		text := strings.TrimSpace(strings.Join(lines[b.start:b.end], "\n"))
		if text == "" {
			continue
		}
		q := model.Question{
			Number:    b.number,
			Text:      text,
			HasFigure: blockHasFigure(lines[b.start:b.end], figureLines, b.start),
		}
		for _, line := range lines[b.start:b.end] {
			if m := answerRe.FindStringSubmatch(line); m != nil {
				q.Answer = strings.TrimSpace(m[1])
				break
			}
		}
		questions = append(questions, q)
	}
	return questions
}

func flatten(pages []Page) (lines []string, figureLines map[int]bool) {
	figureLines = make(map[int]bool)
	for _, p := range pages {
		base := len(lines)
		pageLines := strings.Split(strings.ReplaceAll(p.Text, "\r\n", "\n"), "\n")
		for _, fl := range p.FigureLines {
			if fl >= 0 && fl < len(pageLines) {
				figureLines[base+fl] = true
			}
		}
		lines = append(lines, pageLines...)
	}
	return lines, figureLines
}

func matchAnchor(line string) (int, bool) {
	for _, re := range anchorPatterns {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil || num < 1 || num > 999 {
			continue
		}
		return num, true
	}
	return 0, false
}

func blockHasFigure(blockLines []string, figureLines map[int]bool, start int) bool {
	for i := range blockLines {
		if figureLines[start+i] {
			return true
		}
	}
	return figureRefRe.MatchString(strings.Join(blockLines, "\n"))
}
