package loop

import (
	"fmt"
	"strings"
)

func planPrompt(gitLog string, failures []string) string {
	var b strings.Builder
	b.WriteString("Plan the next iteration of work on this repository.\n\n")
	if gitLog != "" {
		b.WriteString("Recent commits, newest first:\n")
		b.WriteString(gitLog)
		b.WriteString("\n\n")
	} else {
		b.WriteString("The repository has no commits yet.\n\n")
	}
	if len(failures) > 0 {
		b.WriteString("Earlier iterations hit these failures; plan around them:\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}
	b.WriteString("Pick one concrete, committable unit of work. ")
	b.WriteString("Submit it with the submit_plan tool: a summary, the ordered ")
	b.WriteString("steps, and how to validate the result. Set is_complete only ")
	b.WriteString("when the repository needs no further work, with a short ")
	b.WriteString("completion_message saying why.")
	return b.String()
}

func implementPrompt(p Plan) string {
	var b strings.Builder
	b.WriteString("Carry out this plan, modifying the repository as needed:\n\n")
	b.WriteString(p.Summary)
	if len(p.Steps) > 0 {
		b.WriteString("\n\nSteps:\n")
		for i, step := range p.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	}
	if len(p.Validation) > 0 {
		b.WriteString("\nValidate the result by:\n")
		for _, v := range p.Validation {
			fmt.Fprintf(&b, "- %s\n", v)
		}
	}
	return b.String()
}

func reviewPrompt(diff string) string {
	return "Review the staged diff below. Reply with exactly \"LGTM\" if it is " +
		"acceptable. Otherwise list the problems as bullet lines starting " +
		"with \"- \", most important first.\n\n" + diff
}

func fixPrompt(bullets []string) string {
	var b strings.Builder
	b.WriteString("A review of your changes raised these points. Address each one:\n")
	for _, item := range bullets {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return b.String()
}

func commitMessagePrompt(planDescription string) string {
	return "Write a one-line git commit message (no quotes, under 70 " +
		"characters) for work described as:\n\n" + planDescription
}

// isApproval reports whether reviewer output is an approval token.
func isApproval(text string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(text)), "LGTM")
}

// feedbackBullets extracts "- " bullet lines from reviewer output.
func feedbackBullets(text string) []string {
	var bullets []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, "- "); ok {
			bullets = append(bullets, strings.TrimSpace(rest))
		}
	}
	return bullets
}

// firstLine trims model output down to a usable one-line commit message.
func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return strings.Trim(line, "`\" ")
}
