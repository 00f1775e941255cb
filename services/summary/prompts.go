package summary

import (
	"fmt"
	"strings"
)

// Sections are the headings every summary has, in this order
var Sections = []string{
	"Topic Overview",
	"Key Points",
	"Details Discussed",
	"Decisions & Actions",
	"Questions & Open Items",
}

const createTemplate = `You are summarizing a conversation between a user and one or more AI agents so that it can be continued later.

Write a concise but complete summary in Markdown using exactly the following sections, in this order:

%s

Keep names, numbers and concrete facts. Do not invent anything that is not in the conversation. If a section has nothing to report, write "None".

Conversation:
%s`

const updateTemplate = `You maintain a running summary of a conversation between a user and one or more AI agents.

Here is the current summary:
%s

Here are the messages exchanged since it was written:
%s

Produce an updated summary that merges the new messages into the current one. Use Markdown with exactly the following sections, in this order:

%s

Keep earlier points that are still relevant, replace anything the new messages superseded, and do not invent anything that is not in the conversation. If a section has nothing to report, write "None".`

func sectionOutline() string {
	var b strings.Builder
	for i, s := range Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s", s)
	}
	return b.String()
}

// CreatePrompt asks for a first summary of transcript
func CreatePrompt(transcript string) string {
	return fmt.Sprintf(createTemplate, sectionOutline(), transcript)
}

// UpdatePrompt asks for existing to be revised with transcript
func UpdatePrompt(existing, transcript string) string {
	return fmt.Sprintf(updateTemplate, existing, transcript, sectionOutline())
}
