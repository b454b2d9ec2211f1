package schema

// ValidationResult is the advisory outcome of a structural check on one
// diagram definition. Error holds the first violation found.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Pass returns a passing result.
func Pass() ValidationResult {
	return ValidationResult{Valid: true}
}

// Fail returns a failing result with the given diagnostic.
func Fail(msg string) ValidationResult {
	return ValidationResult{Valid: false, Error: msg}
}

// ToError converts the result to a GuardError if invalid, nil if valid.
func (r ValidationResult) ToError(key string) error {
	if r.Valid {
		return nil
	}
	return NewError(ErrCodeValidation, r.Error).WithKey(key)
}
