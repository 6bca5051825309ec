package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Load reads a plan file written by the engine hook. YAML and JSON are both accepted.
// A plan without a query id gets a generated one.
func Load(fs afero.Fs, path string) (*QueryPlan, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read plan %s", path)
	}
	var p QueryPlan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrapf(err, "parse plan %s", path)
	}
	for i, in := range p.Inputs {
		p.Inputs[i].Type = EntityType(strings.ToUpper(string(in.Type)))
	}
	if p.QueryID == "" {
		p.QueryID = NewQueryID(time.Now())
	}
	return &p, nil
}

// NewQueryID returns an id shaped like the engine's: hive_<yyyyMMddHHmmss>_<uuid>.
func NewQueryID(now time.Time) string {
	return fmt.Sprintf("hive_%s_%s", now.UTC().Format("20060102150405"), uuid.NewString())
}
