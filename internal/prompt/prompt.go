// Package prompt composes the single-turn prompt sent to the language model.
package prompt

import (
	"strings"

	"fateweaver/internal/model"
)

// DefaultWindow is how many recent messages are replayed as context.
const DefaultWindow = 20

const role = "SYSTEM ROLE:\n" +
	"You are an AI assistant that provides direct answers only, no reasoning steps.\n" +
	"ROLEPLAY as the game engine: respond with a single line of dialogue or a concise event narration.\n" +
	"Use bracketed direction when helpful, e.g., Narrator: [somber] The bells toll.\n" +
	"Pick the most appropriate SPEAKER from the provided characters or 'Narrator'.\n" +
	"Keep responses concise and in-world.\n"

const task = "TASK:\n" +
	"Using the world data, produce an in-world response as either an appropriate character " +
	"or the Narrator, if an appropriate character to respond is not available. You can be verbose, but " +
	"do not go beyond five sentences. You may include bracketed directions like [cautiously] " +
	"at the start of the line to express emotion or voice acting direction.\n\n" +
	"At all costs to maintain immersion, you are not to acknowledge that you are an AI or virtual assistant. If " +
	"the input response from the player is immersion breaking (i.e. dropping a nuclear bomb in a medieval setting), " +
	"do not allow it and instead reframe the response to be in universe (i.e. 'Narrator: Although you say this, you do not " +
	"know what a nuclear bomb is'). Only allow the player to do actions that are capable for humans to do in this fantasy medieval setting.\n\n"

// Input is everything a turn prompt is built from.
type Input struct {
	History     []model.Message
	Window      int
	Briefs      []string
	LocationIDs []string
	Speakers    []string
	UserMessage string
}

// LastN returns the trailing n messages of history.
func LastN(history []model.Message, n int) []model.Message {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// Transcript renders history as "User:"/"Assistant:" lines.
func Transcript(history []model.Message) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		who := "Assistant"
		if m.FromUser() {
			who = "User"
		}
		lines = append(lines, who+": "+m.Text)
	}
	return strings.Join(lines, "\n")
}

// Schema is the strict-JSON response instruction listing the allowed speakers.
func Schema(speakers []string) string {
	return "Return ONLY valid JSON with this exact shape and keys:\n" +
		`{"speaker": "<one of: ` + strings.Join(speakers, ", ") + `>", ` +
		`"text": "<the exact dialogue or narration to say>", ` +
		`"location": "<optional: one of the known location ids or empty string>"}` + "\n" +
		"Do not include markdown fences or extra text."
}

// Build assembles the full prompt.
func Build(in Input) string {
	window := in.Window
	if window <= 0 {
		window = DefaultWindow
	}

	var b strings.Builder
	b.WriteString(role)
	b.WriteString("\nCONTEXT (recent chat transcript):\n")
	b.WriteString(Transcript(LastN(in.History, window)))
	b.WriteString("\n\nWORLD DATA:\nCharacters:\n- ")
	b.WriteString(strings.Join(in.Briefs, "\n- "))
	b.WriteString("\n\nKnown locations: ")
	b.WriteString(strings.Join(in.LocationIDs, ", "))
	b.WriteString("\n\n")
	b.WriteString(task)
	b.WriteString(Schema(in.Speakers))
	b.WriteString("\n\nUser: ")
	b.WriteString(in.UserMessage)
	return b.String()
}
