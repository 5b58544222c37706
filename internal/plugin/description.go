package plugin

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const minDescriptionRunes = 5

var (
	// ErrDescriptionTooShort is returned for descriptions under five characters.
	ErrDescriptionTooShort = errors.New("description too short")

	// ErrDescriptionBlocked is returned when a description names a blocked topic.
	ErrDescriptionBlocked = errors.New("description contains blocked content")
)

var blockedTerms = []string{
	"黑客", "破解", "攻击", "病毒", "木马", "钓鱼", "诈骗",
	"赌博", "色情", "暴力", "政治", "反动", "违法",
}

// ValidateDescription rejects descriptions that are too short or mention a
// blocked topic. It runs before any model call.
func ValidateDescription(desc string) error {
	trimmed := strings.TrimSpace(desc)
	if utf8.RuneCountInString(trimmed) < minDescriptionRunes {
		return fmt.Errorf("%w: need at least %d characters", ErrDescriptionTooShort, minDescriptionRunes)
	}

	lower := strings.ToLower(desc)
	for _, term := range blockedTerms {
		if strings.Contains(lower, term) {
			return fmt.Errorf("%w: %q", ErrDescriptionBlocked, term)
		}
	}
	return nil
}
