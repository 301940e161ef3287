package agent

import "fmt"

// Prompt templates. Arguments are substituted verbatim, without quoting or
// escaping.
const (
	phraseTranslationTemplate = "In German, is '%s' the right way to say '%s'? If not, explain why and mark the differences in bold."
	wordDifferenceTemplate    = "In German, what is the difference between '%s' and '%s'?"
)

// PhraseTranslationPrompt asks whether german correctly expresses english.
func PhraseTranslationPrompt(german, english string) string {
	return fmt.Sprintf(phraseTranslationTemplate, german, english)
}

// WordDifferencePrompt asks how two German words differ.
func WordDifferencePrompt(first, second string) string {
	return fmt.Sprintf(wordDifferenceTemplate, first, second)
}
