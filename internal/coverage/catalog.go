package coverage

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	pkgerrors "govern/pkg/errors"
)

// catalogFilePattern matches governed-action schema files: <action>.v<N>.json.
var catalogFilePattern = regexp.MustCompile(`^(.+)\.v(\d+)\.json$`)

// Catalog lists the governed actions declared under a schema tree.
type Catalog struct {
	// Root of the schema tree.
	Root string

	// ExcludeDirs are subtree names (relative to Root) holding shared or
	// library definitions that are not themselves governed actions.
	ExcludeDirs []string
}

// Actions walks the schema tree and returns the governed action ids, sorted.
// Each catalog file must self-declare its action id in a top-level "action"
// field equal to the filename-derived id; drift between the two is a
// configuration error.
func (c Catalog) Actions() ([]string, error) {
	excluded := make(map[string]struct{}, len(c.ExcludeDirs))
	for _, dir := range c.ExcludeDirs {
		excluded[filepath.ToSlash(dir)] = struct{}{}
	}

	var actions []string
	err := filepath.WalkDir(c.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "walk action catalog")
		}

		rel, relErr := filepath.Rel(c.Root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if _, skip := excluded[rel]; skip {
				return fs.SkipDir
			}
			return nil
		}

		m := catalogFilePattern.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}
		// Action ids are versioned: name.vN.
		id := m[1] + ".v" + m[2]

		declared, err := declaredAction(path)
		if err != nil {
			return err
		}
		if declared != id {
			return pkgerrors.Newf(pkgerrors.CodeConfiguration,
				"catalog drift: %s declares action %q but filename implies %q", rel, declared, id)
		}

		actions = append(actions, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(actions)
	return actions, nil
}

func declaredAction(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "read catalog file "+path)
	}
	var doc struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "parse catalog file "+path)
	}
	if strings.TrimSpace(doc.Action) == "" {
		return "", pkgerrors.New(pkgerrors.CodeConfiguration, "catalog file "+path+" has no top-level action field")
	}
	return doc.Action, nil
}
