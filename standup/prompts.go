package standup

import (
	"fmt"
	"strings"
)

func reportPrompt(p Participant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s in a team standup.\n", p.Name)
	if p.Focus != "" {
		fmt.Fprintf(&b, "Your area: %s\n", p.Focus)
	}
	b.WriteString("Report your status with the submit_report tool: a short ")
	b.WriteString("summary of progress and any blockers.")
	return b.String()
}

func syncPrompt(p Participant, reports []StatusReport, earlier []SyncResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s in the sync round of a team standup.\n\n", p.Name)

	b.WriteString("Status reports:\n")
	for _, r := range reports {
		fmt.Fprintf(&b, "- %s: %s\n", r.Participant, r.Summary)
		for _, blocker := range r.Blockers {
			fmt.Fprintf(&b, "  blocked on: %s\n", blocker)
		}
	}

	if len(earlier) > 0 {
		b.WriteString("\nSync responses so far, in order:\n")
		for _, s := range earlier {
			fmt.Fprintf(&b, "- %s: %s\n", s.Participant, s.Response)
		}
	}

	b.WriteString("\nDo not repeat resolutions already made above. Submit what ")
	b.WriteString("you will do next with the submit_sync tool.")
	return b.String()
}
