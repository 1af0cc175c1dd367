package validators

import "strings"

// CleanText trims input, folds internal runs of whitespace to single spaces
// and cuts the result to maxRunes runes. maxRunes <= 0 disables the cut.
func CleanText(input string, maxRunes int) string {
	cleaned := strings.Join(strings.Fields(input), " ")
	if maxRunes <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= maxRunes {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:maxRunes]))
}

// CleanOptional applies CleanText to an optional field and maps blank
// values to nil.
func CleanOptional(input *string, maxRunes int) *string {
	if input == nil {
		return nil
	}
	cleaned := CleanText(*input, maxRunes)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
