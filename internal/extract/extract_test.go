package extract

import (
	"strings"
	"testing"
)

func TestQuestionsBasicSegmentation(t *testing.T) {
	pages := []Page{{Text: strings.Join([]string{
		"Exam Paper 2023 - do not turn over until instructed.",
		"12. What is X?",
		"a) first  b) second",
		"13. What is Y?",
		"a) yes  b) no",
	}, "\n")}}

	questions := Questions(pages)
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if questions[0].Number != 12 || questions[1].Number != 13 {
		t.Errorf("expected numbers 12, 13, got %d, %d", questions[0].Number, questions[1].Number)
	}
	if !strings.Contains(questions[0].Text, "What is X?") {
		t.Errorf("question 12 text wrong: %q", questions[0].Text)
	}
	if strings.Contains(questions[0].Text, "What is Y?") {
		t.Errorf("question 12 text spans into question 13: %q", questions[0].Text)
	}
	if strings.Contains(questions[0].Text, "do not turn over") {
		t.Errorf("preamble before the first anchor must be discarded: %q", questions[0].Text)
	}
	if !strings.Contains(questions[1].Text, "What is Y?") {
		t.Errorf("question 13 text wrong: %q", questions[1].Text)
	}
}

func TestQuestionsMalformedAnchors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"figure caption is not an anchor", "1. Real question\nFigure 3 shows a network diagram below\nmore text", 1},
		{"zero is out of range", "0. not a question", 0},
		{"four digits do not match", "1234. too big", 0},
		{"no anchors at all", "just some prose\nwith no numbering", 0},
		{"inline number is not an anchor", "1. Real question\nsee item 4. for details", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Questions([]Page{{Text: tt.text}})
			if len(got) != tt.want {
				t.Errorf("got %d questions, want %d", len(got), tt.want)
			}
		})
	}
}

func TestQuestionsAnchorFormats(t *testing.T) {
	tests := []struct {
		name string
		line string
		num  int
	}{
		{"dot", "7. text here", 7},
		{"paren", "7) text here", 7},
		{"dash dot", "- 7. text here", 7},
		{"wrapped paren", "(7) text here", 7},
		{"bracket", "[7] text here", 7},
		{"question keyword", "Question 7. text here", 7},
		{"q prefix", "Q7. text here", 7},
		{"number alone on line", "7.", 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Questions([]Page{{Text: tt.line + "\nbody"}})
			if len(got) != 1 {
				t.Fatalf("got %d questions, want 1", len(got))
			}
			if got[0].Number != tt.num {
				t.Errorf("number = %d, want %d", got[0].Number, tt.num)
			}
		})
	}
}

func TestQuestionsNonMonotonicAccepted(t *testing.T) {
	text := "5. five\nbody\n3. three\nbody\n9. nine\nbody"
	questions := Questions([]Page{{Text: text}})
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(questions))
	}
	// Document order is preserved, not sorted.
	want := []int{5, 3, 9}
	for i, q := range questions {
		if q.Number != want[i] {
			t.Errorf("questions[%d].Number = %d, want %d", i, q.Number, want[i])
		}
	}
}

func TestQuestionsRepeatedNumberKeepsFirst(t *testing.T) {
	text := "4. the first four\nbody one\n4. a second four\nbody two\n5. five"
	questions := Questions([]Page{{Text: text}})
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if questions[0].Number != 4 || !strings.Contains(questions[0].Text, "the first four") {
		t.Errorf("first occurrence not kept: %+v", questions[0])
	}
}

func TestQuestionsFigureFlag(t *testing.T) {
	t.Run("collaborator marker", func(t *testing.T) {
		pages := []Page{{
			Text:        "1. Question with picture\nsome body\n2. Plain question\nbody",
			FigureLines: []int{1},
		}}
		questions := Questions(pages)
		if len(questions) != 2 {
			t.Fatalf("expected 2 questions, got %d", len(questions))
		}
		if !questions[0].HasFigure {
			t.Error("question 1 should be figure-flagged via marker")
		}
		if questions[1].HasFigure {
			t.Error("question 2 should not be figure-flagged")
		}
	})

	t.Run("textual reference", func(t *testing.T) {
		questions := Questions([]Page{{Text: "1. Based on the diagram below, pick the answer\nbody"}})
		if len(questions) != 1 || !questions[0].HasFigure {
			t.Errorf("figure reference phrase not detected: %+v", questions)
		}
	})
}

func TestQuestionsAnswerKey(t *testing.T) {
	text := "2. What is the capital of France?\nAnswer: Paris\n3. No key here\nbody"
	questions := Questions([]Page{{Text: text}})
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if questions[0].Answer != "Paris" {
		t.Errorf("answer = %q, want Paris", questions[0].Answer)
	}
	if questions[1].Answer != "" {
		t.Errorf("expected empty answer, got %q", questions[1].Answer)
	}
}

func TestQuestionsSpanMultiplePages(t *testing.T) {
	pages := []Page{
		{Text: "1. Starts on page one"},
		{Text: "continues on page two\n2. Second question\nbody"},
	}
	questions := Questions(pages)
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if !strings.Contains(questions[0].Text, "continues on page two") {
		t.Errorf("question 1 should span the page break: %q", questions[0].Text)
	}
}
