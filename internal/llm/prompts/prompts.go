// Package prompts builds the system and user prompts for the generation,
// validation, and evaluation collaborators.
package prompts

import (
	"fmt"
	"strings"
)

// GeneratorSystem is the system prompt for question generation.
func GeneratorSystem(examName string) string {
	return fmt.Sprintf(
		"You are an expert question writer for the %s exam. "+
			"You write original practice questions in the style, scope, and difficulty of real past papers. "+
			"Questions must be self-contained and answerable from text alone, without figures or tables.",
		examName,
	)
}

// Generation builds the user prompt for generating one question. With
// supporting context the question must be grounded in it; without context
// the model works from the exam name alone.
func Generation(examName, supportingContext string) string {
	var sb strings.Builder
	if supportingContext != "" {
		sb.WriteString("Below are past-exam questions retrieved as reference material:\n\n")
		sb.WriteString("=== REFERENCE QUESTIONS ===\n")
		sb.WriteString(supportingContext)
		sb.WriteString("\n=== END REFERENCE ===\n\n")
		sb.WriteString("Write ONE new practice question for the " + examName + " exam, ")
		sb.WriteString("covering the same topics as the reference questions but not copying any of them verbatim.\n")
	} else {
		sb.WriteString("Write ONE new practice question for the " + examName + " exam.\n")
	}
	sb.WriteString("\nFormat:\n")
	sb.WriteString("=== QUESTION ===\n<question text, with numbered choices if multiple choice>\n")
	sb.WriteString("=== ANSWER ===\n<the correct answer>\n")
	sb.WriteString("=== EXPLANATION ===\n<why the answer is correct>\n")
	return sb.String()
}

// ValidatorSystem is the system prompt for the validation collaborator.
func ValidatorSystem() string {
	var sb strings.Builder
	sb.WriteString("You are an exam question reviewer. Check the question against these criteria:\n")
	sb.WriteString("1. The question is clear and unambiguous.\n")
	sb.WriteString("2. The question is self-contained: no references to figures, tables, or missing material.\n")
	sb.WriteString("3. If multiple choice, exactly one choice is correct.\n")
	sb.WriteString("4. The question is consistent with the supporting context, if any is given.\n")
	sb.WriteString("\nRespond ONLY with a JSON object:\n")
	sb.WriteString(`{"accept": <true/false>, "reason": "<short reason when rejecting, empty when accepting>"}`)
	sb.WriteString("\n")
	return sb.String()
}

// Validation builds the user prompt for validating one generated question.
func Validation(questionText, supportingContext string) string {
	var sb strings.Builder
	sb.WriteString("=== GENERATED QUESTION ===\n")
	sb.WriteString(questionText)
	sb.WriteString("\n")
	if supportingContext != "" {
		sb.WriteString("\n=== SUPPORTING CONTEXT ===\n")
		sb.WriteString(supportingContext)
		sb.WriteString("\n")
	}
	return sb.String()
}

// EvaluatorSystem is the system prompt for judging a learner's answer.
func EvaluatorSystem() string {
	var sb strings.Builder
	sb.WriteString("You are an exam grader. Decide whether the learner's answer to the question is correct. ")
	sb.WriteString("Accept equivalent phrasings; for multiple choice, the chosen option must match the correct one.\n")
	sb.WriteString("\nRespond ONLY with a JSON object:\n")
	sb.WriteString(`{"correct": <true/false>, "feedback": "<one or two sentences explaining the verdict>"}`)
	sb.WriteString("\n")
	return sb.String()
}

// Evaluation builds the user prompt for grading one answer. The answer key
// may be empty when the source document carried none; the grader then
// judges on its own knowledge.
func Evaluation(questionText, answerKey, userAnswer string) string {
	var sb strings.Builder
	sb.WriteString("=== QUESTION ===\n")
	sb.WriteString(questionText)
	sb.WriteString("\n")
	if answerKey != "" {
		sb.WriteString("\n=== ANSWER KEY (not shown to the learner) ===\n")
		sb.WriteString(answerKey)
		sb.WriteString("\n")
	}
	sb.WriteString("\n=== LEARNER ANSWER ===\n")
	sb.WriteString(userAnswer)
	sb.WriteString("\n")
	return sb.String()
}
