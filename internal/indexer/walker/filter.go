package walker

import (
	"fmt"
	"regexp"
)

// Filter decides which paths the walker visits. Patterns are regular
// expressions matched anywhere in the full candidate path.
type Filter struct {
	include *regexp.Regexp
	exclude *regexp.Regexp
}

// NewFilter compiles the include and exclude patterns. An empty include
// pattern accepts every file; an empty exclude pattern rejects nothing.
func NewFilter(include, exclude string) (Filter, error) {
	var f Filter
	if include != "" {
		re, err := regexp.Compile(include)
		if err != nil {
			return Filter{}, fmt.Errorf("compiling include pattern %q: %w", include, err)
		}
		f.include = re
	}
	if exclude != "" {
		re, err := regexp.Compile(exclude)
		if err != nil {
			return Filter{}, fmt.Errorf("compiling exclude pattern %q: %w", exclude, err)
		}
		f.exclude = re
	}
	return f, nil
}

// Excluded applies to directories and files alike; an excluded directory is
// pruned with everything beneath it.
func (f Filter) Excluded(path string) bool {
	return f.exclude != nil && f.exclude.MatchString(path)
}

// Included applies to files only, after Excluded has passed.
func (f Filter) Included(path string) bool {
	return f.include == nil || f.include.MatchString(path)
}
