package tooling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	compileMu sync.Mutex
	compiled  = make(map[Name]*jsonschema.Schema)
)

// validateArgs compiles (and caches) spec.ArgsSchema, then validates args
// against it. A Spec with no ArgsSchema skips validation (the tool takes no
// arguments, e.g. none of V1's five tools, but future tools may).
func validateArgs(spec Spec, args json.RawMessage) error {
	if len(spec.ArgsSchema) == 0 {
		return nil
	}

	compileMu.Lock()
	schema, ok := compiled[spec.Name]
	if !ok {
		c := jsonschema.NewCompiler()
		res, err := jsonschema.UnmarshalJSON(bytes.NewReader(spec.ArgsSchema))
		if err != nil {
			compileMu.Unlock()
			return fmt.Errorf("decode schema for %q: %w", spec.Name, err)
		}
		resourceName := "parley/tool/" + string(spec.Name) + ".json"
		if err := c.AddResource(resourceName, res); err != nil {
			compileMu.Unlock()
			return fmt.Errorf("register schema for %q: %w", spec.Name, err)
		}
		schema, err = c.Compile(resourceName)
		if err != nil {
			compileMu.Unlock()
			return fmt.Errorf("compile schema for %q: %w", spec.Name, err)
		}
		compiled[spec.Name] = schema
	}
	compileMu.Unlock()

	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return err
	}
	return nil
}
