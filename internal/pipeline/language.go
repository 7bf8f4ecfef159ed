package pipeline

import "strings"

// Language selects the status message vocabulary.
type Language string

const (
	Dutch   Language = "nl"
	English Language = "en"
	// Auto follows the language of the transcript.
	Auto Language = "auto"
)

// ParseLanguage maps a config value onto a Language. Unknown values fall
// back to Dutch.
func ParseLanguage(s string) Language {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case English:
		return English
	case Auto:
		return Auto
	default:
		return Dutch
	}
}

// resolve picks the concrete language for a transcript.
func (l Language) resolve(transcript string) Language {
	if l != Auto {
		return l
	}
	if transcript != "" && !DetectDutch(transcript) {
		return English
	}
	return Dutch
}

var dutchWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`ik je het de en een dat is in te van niet
		zijn op voor met als maar om aan er nog ook moet kan zal wil gaan maken
		doen hebben worden morgen vandaag gisteren volgende week maand`) {
		dutchWords[w] = struct{}{}
	}
}

// DetectDutch reports whether more than 15% of the words in text are
// common Dutch words.
func DetectDutch(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return false
	}
	n := 0
	for _, w := range words {
		if _, ok := dutchWords[w]; ok {
			n++
		}
	}
	return float64(n)/float64(len(words)) > 0.15
}
