package factory

import (
	"fmt"

	"github.com/batchshipyard/engine/pkg/types"
)

// BuildCommands expands factory and renders template once per resulting
// substitution set, returning the concrete command for each task in
// expansion order. The command template is parsed once and validated
// against the factory's positional-index count before any substitution
// runs, so a malformed template fails before any task is produced (§4.F).
func BuildCommands(f *types.TaskFactory, template string, lister FileLister) ([]string, error) {
	tokens, err := Parse(template)
	if err != nil {
		return nil, fmt.Errorf("parsing command template: %w", err)
	}
	if n := NumPositional(f); n > 0 {
		if err := ValidateIndices(tokens, n); err != nil {
			return nil, fmt.Errorf("validating command template: %w", err)
		}
	}

	substitutions, err := Expand(f, lister)
	if err != nil {
		return nil, fmt.Errorf("expanding task factory: %w", err)
	}

	commands := make([]string, len(substitutions))
	for i, values := range substitutions {
		cmd, err := Substitute(tokens, values)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		commands[i] = cmd
	}
	return commands, nil
}
