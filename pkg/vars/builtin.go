package vars

import (
	"os"
	"path/filepath"

	"github.com/rashlabs/rash/pkg/value"
)

// Builtins constructs the bottom frame: the `rash` namespace with the
// canonical script path, its directory, the raw script argv (under both
// `args` and `argv`), and the current user ids.
func Builtins(scriptPath string, scriptArgs []string) Frame {
	abs, err := filepath.Abs(scriptPath)
	if err != nil {
		abs = scriptPath
	}
	dir := filepath.Dir(abs)

	args := make([]value.Value, len(scriptArgs))
	for i, a := range scriptArgs {
		args[i] = value.StringValue(a)
	}
	argsValue := value.SeqValue(args...)

	user := value.NewMap()
	user.MapSet("uid", value.IntValue(int64(os.Getuid())))
	user.MapSet("gid", value.IntValue(int64(os.Getgid())))

	rash := value.NewMap()
	rash.MapSet("path", value.StringValue(abs))
	rash.MapSet("dir", value.StringValue(dir))
	rash.MapSet("args", argsValue)
	rash.MapSet("argv", argsValue)
	rash.MapSet("user", user)

	return Frame{"rash": rash}
}
