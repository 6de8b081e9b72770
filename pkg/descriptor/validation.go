package descriptor

import (
	"github.com/core-tools/hsu-procset/pkg/errors"
)

const maxNameLength = 64

// ValidateName checks a process name. Names end up in file and unit names,
// so they are restricted to a portable character set.
func ValidateName(name string) error {
	if name == "" {
		return errors.NewConfigError("process name cannot be empty", nil)
	}

	if len(name) > maxNameLength {
		return errors.NewConfigError("process name cannot exceed 64 characters", nil).WithContext("name", name)
	}

	if name[0] == '.' {
		return errors.NewConfigError("process name cannot start with a dot", nil).WithContext("name", name)
	}

	for _, char := range name {
		if !isValidNameChar(char) {
			return errors.NewConfigError("process name contains invalid characters: only letters, numbers, dots, hyphens, and underscores are allowed", nil).
				WithContext("name", name)
		}
	}

	return nil
}

func isValidNameChar(char rune) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '-' || char == '_' || char == '.'
}
