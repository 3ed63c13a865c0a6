package llm

import (
	"fmt"
	"strings"
)

func buildPrompt(mode Mode, content string, params map[string]string) (string, error) {
	switch mode {
	case ModeSummarize:
		return buildSummarizePrompt(content), nil
	case ModeCategorize:
		return buildCategorizePrompt(content), nil
	case ModeMatchLabel:
		return buildMatchLabelPrompt(content, params["labelName"], params["labelDescription"]), nil
	default:
		return "", fmt.Errorf("llm: unknown mode %q", mode)
	}
}

func buildSummarizePrompt(content string) string {
	var sb strings.Builder

	sb.WriteString("You triage a mailbox. Classify this email and summarize it. Return JSON only.\n\n")
	sb.WriteString("Email content:\n")
	sb.WriteString(content)
	sb.WriteString("\n\n")
	sb.WriteString(`Return a JSON object with this structure:
{
  "summary": "one or two sentences",
  "category": "Job application" or "Other",
  "hasUnsubscribe": true or false,
  "unsubscribeLink": "url or null",
  "transitionFrom": "previous funnel stage or null",
  "transitionTo": "new funnel stage or null"
}

Rules:
- category is "Job application" only for messages about the reader's own job applications
- funnel stages: Applications sent, OA Screening, Interview, Offer, Accepted, Rejected, No response, Declined
- transitionTo is the stage this email moves the application to; null when the email is not job-related or changes nothing
- transitionFrom is the stage it moved from, when the email makes that clear

Return ONLY the JSON, no other text.`)

	return sb.String()
}

func buildCategorizePrompt(content string) string {
	var sb strings.Builder

	sb.WriteString("Categorize this email as job-related or not. Return JSON only.\n\n")
	sb.WriteString("Email content:\n")
	sb.WriteString(content)
	sb.WriteString("\n\n")
	sb.WriteString(`Return a JSON object with this structure:
{
  "category": "Job application" or "Other",
  "confidence": 0.0-1.0
}

Return ONLY the JSON, no other text.`)

	return sb.String()
}

func buildMatchLabelPrompt(content, labelName, labelDescription string) string {
	var sb strings.Builder

	sb.WriteString("Decide whether this email belongs under the given label. Return JSON only.\n\n")
	sb.WriteString("Label: ")
	sb.WriteString(labelName)
	sb.WriteString("\n")
	if labelDescription != "" {
		sb.WriteString("Label description: ")
		sb.WriteString(labelDescription)
		sb.WriteString("\n")
	}
	sb.WriteString("\nEmail content:\n")
	sb.WriteString(content)
	sb.WriteString("\n\n")
	sb.WriteString(`Return a JSON object with this structure:
{
  "match": true or false
}

Return ONLY the JSON, no other text.`)

	return sb.String()
}
