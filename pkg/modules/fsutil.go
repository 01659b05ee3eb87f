package modules

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/value"
)

// parseMode parses an octal mode string ("0644", "644").
func parseMode(s string) (os.FileMode, error) {
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, engine.NewErrorf(engine.KindParamInvalid, "invalid mode %q", s)
	}
	return os.FileMode(n), nil
}

// ensureContent converges a file onto the desired content and mode. The
// returned result reports changed truthfully in check mode too, and carries
// a unified diff in extra when the content is text. Writes go through a
// temp file and rename so a crash never leaves a half-written target.
func ensureContent(module string, dest string, content []byte, mode string, check bool) (*engine.ModuleResult, error) {
	current, err := os.ReadFile(dest)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return nil, engine.WrapError(engine.KindModuleFailed,
			fmt.Sprintf("%s: cannot read %s", module, dest), err)
	}

	var wantMode os.FileMode
	if mode != "" {
		if wantMode, err = parseMode(mode); err != nil {
			return nil, err
		}
	}

	contentChanged := !exists || !bytes.Equal(current, content)
	modeChanged := false
	if mode != "" && exists {
		info, err := os.Stat(dest)
		if err != nil {
			return nil, engine.WrapError(engine.KindModuleFailed,
				fmt.Sprintf("%s: cannot stat %s", module, dest), err)
		}
		modeChanged = info.Mode().Perm() != wantMode
	}

	result := &engine.ModuleResult{Changed: contentChanged || modeChanged}
	if contentChanged {
		if diff := computeDiff(dest, current, content); diff != "" {
			extra := value.NewMap()
			extra.MapSet("diff", value.StringValue(diff))
			result.Extra = extra
		}
	}

	if check || !result.Changed {
		return result, nil
	}

	if contentChanged {
		perm := os.FileMode(0o644)
		if mode != "" {
			perm = wantMode
		} else if exists {
			if info, err := os.Stat(dest); err == nil {
				perm = info.Mode().Perm()
			}
		}
		tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
		if err != nil {
			return nil, engine.WrapError(engine.KindModuleFailed,
				fmt.Sprintf("%s: cannot write %s", module, dest), err)
		}
		tmpName := tmp.Name()
		if _, err := tmp.Write(content); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return nil, engine.WrapError(engine.KindModuleFailed,
				fmt.Sprintf("%s: cannot write %s", module, dest), err)
		}
		if err := tmp.Chmod(perm); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return nil, engine.WrapError(engine.KindModuleFailed,
				fmt.Sprintf("%s: cannot chmod %s", module, dest), err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return nil, engine.WrapError(engine.KindModuleFailed,
				fmt.Sprintf("%s: cannot write %s", module, dest), err)
		}
		if err := os.Rename(tmpName, dest); err != nil {
			os.Remove(tmpName)
			return nil, engine.WrapError(engine.KindModuleFailed,
				fmt.Sprintf("%s: cannot replace %s", module, dest), err)
		}
	} else if modeChanged {
		if err := os.Chmod(dest, wantMode); err != nil {
			return nil, engine.WrapError(engine.KindModuleFailed,
				fmt.Sprintf("%s: cannot chmod %s", module, dest), err)
		}
	}
	return result, nil
}

// computeDiff returns a unified diff of the change, or "" for binary
// content. Rendering is the output layer's concern; this only computes.
func computeDiff(dest string, old, new []byte) string {
	if !utf8.Valid(old) || !utf8.Valid(new) {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(old)),
		B:        difflib.SplitLines(string(new)),
		FromFile: dest,
		ToFile:   dest,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}
