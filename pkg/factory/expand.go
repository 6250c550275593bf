package factory

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/batchshipyard/engine/pkg/types"
)

// FileLister enumerates remote object-storage entries for the `file` factory
// kind, filtered by include then exclude globs (§4.F).
type FileLister interface {
	List(include, exclude []string) ([]string, error)
}

// Expand produces the ordered substitution-value maps for factory, one per
// resulting task descriptor. Map keys are either positional indices ("0",
// "1", ...) or, for the file kind, the named tokens file_path/file_name/
// file_stem/file_ext.
func Expand(f *types.TaskFactory, lister FileLister) ([]map[string]string, error) {
	switch f.Kind {
	case types.FactoryRepeat:
		return expandRepeat(f)
	case types.FactoryProduct:
		return expandProduct(f)
	case types.FactoryCombinations:
		return expandCombinations(f)
	case types.FactoryPermutations:
		return expandPermutations(f)
	case types.FactoryZip:
		return expandZip(f)
	case types.FactoryFile:
		return expandFile(f, lister)
	default:
		return nil, fmt.Errorf("unknown task factory kind %q", f.Kind)
	}
}

// NumPositional reports how many positional substitution indices a factory
// produces, for template index validation. File factories use named
// placeholders and report 0.
func NumPositional(f *types.TaskFactory) int {
	switch f.Kind {
	case types.FactoryRepeat:
		return 0
	case types.FactoryProduct:
		return len(f.Ranges)
	case types.FactoryCombinations:
		return f.Length
	case types.FactoryPermutations:
		return f.Length
	case types.FactoryZip:
		return len(f.Iterables)
	default:
		return 0
	}
}

func expandRepeat(f *types.TaskFactory) ([]map[string]string, error) {
	if f.Repeat < 0 {
		return nil, fmt.Errorf("repeat count must be >= 0, got %d", f.Repeat)
	}
	out := make([]map[string]string, f.Repeat)
	for i := range out {
		// {0} is unused by repeat (§4.F) but still must resolve rather
		// than fail substitution, so every descriptor binds it to the
		// constant "0".
		out[i] = map[string]string{"0": "0"}
	}
	return out, nil
}

func expandIntRange(r types.IntRange) ([]int, error) {
	step := r.Step
	if step == 0 {
		step = 1
	}
	var vals []int
	if step > 0 {
		for v := r.Start; v < r.Stop; v += step {
			vals = append(vals, v)
		}
	} else {
		for v := r.Start; v > r.Stop; v += step {
			vals = append(vals, v)
		}
	}
	return vals, nil
}

func expandProduct(f *types.TaskFactory) ([]map[string]string, error) {
	if len(f.Ranges) == 0 {
		return nil, fmt.Errorf("product factory requires at least one range")
	}
	axes := make([][]int, len(f.Ranges))
	for i, r := range f.Ranges {
		vals, err := expandIntRange(r)
		if err != nil {
			return nil, err
		}
		axes[i] = vals
	}

	var out []map[string]string
	var rec func(pos int, current []int)
	rec = func(pos int, current []int) {
		if pos == len(axes) {
			m := make(map[string]string, len(current))
			for i, v := range current {
				m[strconv.Itoa(i)] = strconv.Itoa(v)
			}
			out = append(out, m)
			return
		}
		// left-most range varies slowest: iterate the current axis in the
		// inner-most position of the recursion, so higher positions change
		// fastest only once all earlier axes have been fixed for this call.
		for _, v := range axes[pos] {
			rec(pos+1, append(current, v))
		}
	}
	rec(0, nil)
	return out, nil
}

func expandCombinations(f *types.TaskFactory) ([]map[string]string, error) {
	n := len(f.Iterable)
	l := f.Length
	if !f.WithReplacement && l > n {
		return nil, fmt.Errorf("combinations requires |iterable|(%d) >= length(%d) without replacement", n, l)
	}
	var out []map[string]string
	idx := make([]int, l)
	var rec func(pos, start int)
	rec = func(pos, start int) {
		if pos == l {
			m := make(map[string]string, l)
			for i, ix := range idx {
				m[strconv.Itoa(i)] = f.Iterable[ix]
			}
			out = append(out, m)
			return
		}
		from := start
		for i := from; i < n; i++ {
			idx[pos] = i
			if f.WithReplacement {
				rec(pos+1, i)
			} else {
				rec(pos+1, i+1)
			}
		}
	}
	if l > 0 {
		rec(0, 0)
	} else {
		out = append(out, map[string]string{})
	}
	return out, nil
}

func expandPermutations(f *types.TaskFactory) ([]map[string]string, error) {
	n := len(f.Iterable)
	l := f.Length
	if l > n {
		return nil, fmt.Errorf("permutations requires |iterable|(%d) >= length(%d)", n, l)
	}
	var out []map[string]string
	used := make([]bool, n)
	idx := make([]int, l)
	var rec func(pos int)
	rec = func(pos int) {
		if pos == l {
			m := make(map[string]string, l)
			for i, ix := range idx {
				m[strconv.Itoa(i)] = f.Iterable[ix]
			}
			out = append(out, m)
			return
		}
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			used[i] = true
			idx[pos] = i
			rec(pos + 1)
			used[i] = false
		}
	}
	if l > 0 {
		rec(0)
	} else {
		out = append(out, map[string]string{})
	}
	return out, nil
}

func expandZip(f *types.TaskFactory) ([]map[string]string, error) {
	if len(f.Iterables) == 0 {
		return nil, fmt.Errorf("zip factory requires at least one iterable")
	}
	shortest := len(f.Iterables[0])
	for _, it := range f.Iterables[1:] {
		if len(it) < shortest {
			shortest = len(it)
		}
	}
	out := make([]map[string]string, shortest)
	for i := range out {
		m := make(map[string]string, len(f.Iterables))
		for j, it := range f.Iterables {
			m[strconv.Itoa(j)] = it[i]
		}
		out[i] = m
	}
	return out, nil
}

func expandFile(f *types.TaskFactory, lister FileLister) ([]map[string]string, error) {
	if lister == nil {
		return nil, fmt.Errorf("file factory requires a FileLister")
	}
	paths, err := lister.List(f.Include, f.Exclude)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	out := make([]map[string]string, 0, len(paths))
	for _, p := range paths {
		name := path.Base(p)
		ext := path.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		out = append(out, map[string]string{
			"file_path": p,
			"file_name": name,
			"file_stem": stem,
			"file_ext":  strings.TrimPrefix(ext, "."),
		})
	}
	return out, nil
}
