// Package policy loads automation rules and settings from a CUE file. The file
// is unified with an embedded schema, so defaults are filled in and bad
// values are rejected before anything reaches the rule engine.
package policy

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/matthewbaird/rentpulse/internal/types"
)

//go:embed schema.cue
var schemaSource string

// Policy is the decoded content of a policy file.
type Policy struct {
	Settings types.AutomationSettings `json:"settings"`
	Rules    []types.AutomationRule   `json:"rules"`
}

// Load reads and validates the policy file at path.
func Load(path string, now time.Time) (Policy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading policy: %w", err)
	}
	return Parse(src, filepath.Base(path), now)
}

// Parse validates src against the schema and decodes it. Rules are stamped
// with now as their creation time.
func Parse(src []byte, filename string, now time.Time) (Policy, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Policy{}, fmt.Errorf("compiling policy schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Policy"))

	doc := ctx.CompileBytes(src, cue.Filename(filename))
	if err := doc.Err(); err != nil {
		return Policy{}, fmt.Errorf("parsing %s: %s", filename, errors.Details(err, nil))
	}

	val := def.Unify(doc)
	if err := val.Validate(); err != nil {
		return Policy{}, fmt.Errorf("validating %s: %s", filename, errors.Details(err, nil))
	}
	raw, err := val.MarshalJSON()
	if err != nil {
		return Policy{}, fmt.Errorf("exporting %s: %s", filename, errors.Details(err, nil))
	}

	var p Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("decoding %s: %w", filename, err)
	}
	seen := make(map[string]bool, len(p.Rules))
	for i := range p.Rules {
		if seen[p.Rules[i].ID] {
			return Policy{}, fmt.Errorf("validating %s: duplicate rule id %q", filename, p.Rules[i].ID)
		}
		seen[p.Rules[i].ID] = true
		p.Rules[i].CreatedAt = now
	}
	return p, nil
}
