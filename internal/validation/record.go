package validation

import (
	"fmt"
	"regexp"
)

// TypePattern определяет допустимый формат имени типа записи
// Строчные латинские буквы, цифры, точка, дефис, нижнее подчеркивание; начинается с буквы
// Длина: 1-64 символа
var TypePattern = regexp.MustCompile(`^[a-z][a-z0-9_.-]{0,63}$`)

// MaxIDLen максимальная длина идентификатора записи
const MaxIDLen = 128

// ValidateType проверяет имя типа payload
func ValidateType(recordType string) error {
	if recordType == "" {
		return fmt.Errorf("record type cannot be empty")
	}

	if !TypePattern.MatchString(recordType) {
		return fmt.Errorf("record type %q must match %s", recordType, TypePattern.String())
	}

	return nil
}

// ValidateID проверяет идентификатор записи, заданный вызывающей стороной
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("record id cannot be empty")
	}

	if len(id) > MaxIDLen {
		return fmt.Errorf("record id must not exceed %d characters", MaxIDLen)
	}

	for _, r := range id {
		if r < 0x21 || r == 0x7f {
			return fmt.Errorf("record id must not contain whitespace or control characters")
		}
	}

	return nil
}
