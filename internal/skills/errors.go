package skills

import "errors"

// ErrSkillNotFound is returned when an execution names an unknown skill.
var ErrSkillNotFound = errors.New("skill not found")
