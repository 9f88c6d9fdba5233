package chat

import (
	"fmt"
	"strings"
)

// FallbackResponse is returned when no course material matches the query.
const FallbackResponse = "I couldn't find specific course materials related to your question. " +
	"Could you try a different search term or visit the course materials directly? " +
	"If you're stuck, consider checking the prerequisites or earlier chapters."

const maxFollowUps = 4

var followUpTable = map[Intent][]string{
	IntentExplain: {
		"Can you provide a code example?",
		"How is this used in practice?",
		"What are common mistakes with this?",
	},
	IntentCodeExample: {
		"Can you explain this code line by line?",
		"How would I modify this example?",
		"Are there alternative approaches?",
	},
	IntentDebug: {
		"What's the most common cause of this error?",
		"How can I prevent this issue?",
		"Are there debugging tools that help?",
	},
	IntentClarify: {
		"Can you use an analogy?",
		"Do you have a simpler example?",
		"What are the key points to remember?",
	},
}

const theoryFollowUp = "What are the underlying theoretical concepts?"

// FollowUps returns at most four suggested next questions.
func FollowUps(intent Intent, difficulty Difficulty) []string {
	base, ok := followUpTable[intent]
	if !ok {
		base = followUpTable[IntentExplain]
	}

	out := make([]string, 0, len(base)+1)
	for _, s := range base {
		if difficulty == Beginner {
			s = strings.ReplaceAll(s, "line by line", "in simple terms")
		}
		out = append(out, s)
	}
	if difficulty == Advanced {
		out = append(out, theoryFollowUp)
	}
	if len(out) > maxFollowUps {
		out = out[:maxFollowUps]
	}
	return out
}

// BuildSystemPrompt renders the tutor instructions for a learner.
func BuildSystemPrompt(courseName string, difficulty Difficulty, moduleSlug string) string {
	contextInfo := "Course"
	if moduleSlug != "" {
		contextInfo = "Module: " + moduleSlug
	}

	return fmt.Sprintf(`You are a helpful tutor for the %s.

Context:
- Student learning level: %s
- Current context: %s
- Explanation style: %s

Instructions:
- Provide clear, accurate answers based on course materials
- If a follow-up clarification might help, offer it
- Use code examples when appropriate for the learning level
- Suggest related topics that might be helpful
- Be encouraging and supportive

When answering:
1. Start with a direct answer to the question
2. Provide context and explanation as needed
3. Include code examples if relevant
4. End with suggestions for what to learn next`,
		courseName, difficulty, contextInfo, difficulty.Style())
}
