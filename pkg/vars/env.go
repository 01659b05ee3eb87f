package vars

import (
	"os"
	"strings"

	"github.com/rashlabs/rash/pkg/value"
)

// LoadEnv builds the `env` frame from the process environment with the -e
// overrides applied on top. Overrides are also exported to the process so
// spawned commands inherit them.
func LoadEnv(overrides [][2]string) Frame {
	for _, kv := range overrides {
		os.Setenv(kv[0], kv[1])
	}

	env := value.NewMap()
	for _, entry := range os.Environ() {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		env.MapSet(k, value.StringValue(v))
	}
	return Frame{"env": env}
}
