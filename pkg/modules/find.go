package modules

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gonjaexec "github.com/nikolalohinski/gonja/v2/exec"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/template"
	"github.com/rashlabs/rash/pkg/value"
)

func init() {
	Register(&findModule{})
	template.RegisterLookup("find", lookupFind)
}

type findParams struct {
	Paths    stringList `yaml:"paths" validate:"required,min=1"`
	Patterns stringList `yaml:"patterns"`
	Recurse  bool       `yaml:"recurse"`
	FileType string     `yaml:"file_type" validate:"omitempty,oneof=file directory any"`
	Hidden   bool       `yaml:"hidden"`
}

// findModule enumerates filesystem entries matching the given patterns. It
// is read-only and never reports changed; the matches are the result's
// extra value.
type findModule struct{}

func (*findModule) Name() string { return "find" }

func (*findModule) TypedParams() bool { return true }

func (m *findModule) Execute(req *Request) (*engine.ModuleResult, error) {
	var params findParams
	if err := decodeParams(m.Name(), req.Params, &params); err != nil {
		return nil, err
	}
	matches, err := runFind(&params)
	if err != nil {
		return nil, err
	}

	items := make([]value.Value, len(matches))
	for i, p := range matches {
		items[i] = value.StringValue(p)
	}
	return &engine.ModuleResult{Extra: value.SeqValue(items...)}, nil
}

func runFind(params *findParams) ([]string, error) {
	fileType := params.FileType
	if fileType == "" {
		fileType = "file"
	}

	var matches []string
	consider := func(path string, isDir bool) {
		base := filepath.Base(path)
		if !params.Hidden && strings.HasPrefix(base, ".") {
			return
		}
		switch fileType {
		case "file":
			if isDir {
				return
			}
		case "directory":
			if !isDir {
				return
			}
		}
		if len(params.Patterns) > 0 {
			matched := false
			for _, pat := range params.Patterns {
				if ok, _ := filepath.Match(pat, base); ok {
					matched = true
					break
				}
			}
			if !matched {
				return
			}
		}
		matches = append(matches, path)
	}

	for _, root := range params.Paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, engine.WrapError(engine.KindModuleFailed, "find: cannot stat "+root, err)
		}
		if !info.IsDir() {
			return nil, engine.NewErrorf(engine.KindModuleFailed, "find: %s is not a directory", root)
		}
		if params.Recurse {
			err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if path == root {
					return nil
				}
				if d.IsDir() && !params.Hidden && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				consider(path, d.IsDir())
				return nil
			})
			if err != nil {
				return nil, engine.WrapError(engine.KindModuleFailed, "find: walk failed", err)
			}
		} else {
			entries, err := os.ReadDir(root)
			if err != nil {
				return nil, engine.WrapError(engine.KindModuleFailed, "find: cannot read "+root, err)
			}
			for _, entry := range entries {
				consider(filepath.Join(root, entry.Name()), entry.IsDir())
			}
		}
	}
	return matches, nil
}

// lookupFind exposes the module as the find() lookup: positional arguments
// are paths, keyword arguments mirror the module parameters.
func lookupFind(params *gonjaexec.VarArgs) *gonjaexec.Value {
	var fp findParams
	for _, arg := range params.Args {
		fp.Paths = append(fp.Paths, arg.String())
	}
	if len(fp.Paths) == 0 {
		return gonjaexec.AsValue(errFindNoPaths)
	}
	if v, ok := params.KwArgs["patterns"]; ok {
		if items, isList := v.Interface().([]interface{}); isList {
			for _, it := range items {
				fp.Patterns = append(fp.Patterns, value.FromGo(it).Stringify())
			}
		} else {
			fp.Patterns = stringList{v.String()}
		}
	}
	if v, ok := params.KwArgs["recurse"]; ok {
		fp.Recurse = v.Bool()
	}
	if v, ok := params.KwArgs["file_type"]; ok {
		fp.FileType = v.String()
	}
	if v, ok := params.KwArgs["hidden"]; ok {
		fp.Hidden = v.Bool()
	}

	matches, err := runFind(&fp)
	if err != nil {
		return gonjaexec.AsValue(err)
	}
	out := make([]interface{}, len(matches))
	for i, p := range matches {
		out[i] = p
	}
	return gonjaexec.AsValue(out)
}

var errFindNoPaths = engine.NewError(engine.KindTemplateError, "find: expected at least one path")
