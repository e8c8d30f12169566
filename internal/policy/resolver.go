package policy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ResolverOptions controls which locations are checked for policy files.
type ResolverOptions struct {
	DirName   string // per-directory policy directory, e.g. ".warden"
	FileName  string // policy file inside DirName (or inside SystemDir)
	SystemDir string // optional system-wide directory holding FileName directly
	HomeDir   string // optional user home; it and its ancestors are checked
}

// Resolver discovers policy sources from a starting directory up to the
// filesystem root.
type Resolver struct {
	loader Loader
	opts   ResolverOptions
}

// NewResolver builds a resolver that delegates parsing to loader.
func NewResolver(loader Loader, opts ResolverOptions) *Resolver {
	if opts.DirName == "" {
		opts.DirName = ".warden"
	}
	if opts.FileName == "" {
		opts.FileName = "policies.yaml"
	}
	return &Resolver{loader: loader, opts: opts}
}

type location struct {
	root string
	path string
}

// Resolve returns every policy source found, broadest scope first. A source
// that fails to load is kept with an empty policy list and LoadErr set.
func (r *Resolver) Resolve(startDir string) []Source {
	var sources []Source
	for _, loc := range r.locations(startDir) {
		info, err := os.Stat(loc.path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			sources = append(sources, Source{Root: loc.root, Path: loc.path, LoadErr: fmt.Errorf("stat %s: %w", loc.path, err)})
			continue
		}
		if info.IsDir() {
			sources = append(sources, Source{Root: loc.root, Path: loc.path, LoadErr: fmt.Errorf("%s is a directory", loc.path)})
			continue
		}
		sources = append(sources, r.load(loc))
	}

	for i := range sources {
		sources[i].Rank = i
		for j := range sources[i].Policies {
			sources[i].Policies[j].Root = sources[i].Root
			sources[i].Policies[j].Rank = i
		}
	}
	return sources
}

func (r *Resolver) load(loc location) (src Source) {
	src = Source{Root: loc.root, Path: loc.path}
	defer func() {
		if rec := recover(); rec != nil {
			src.Policies = nil
			src.LoadErr = fmt.Errorf("panic loading %s: %v", loc.path, rec)
		}
	}()

	policies, err := r.loader.LoadPolicies(loc.path)
	if err != nil {
		src.LoadErr = err
		return src
	}
	src.Policies = policies
	slog.Debug("policy source loaded", "path", loc.path, "policies", len(policies))
	return src
}

// locations lists candidate policy files, broadest first: the system
// directory, the ancestors shared by startDir and the home directory, the rest
// of the home walk, then the rest of the walk down to startDir. When startDir
// is inside home the home walk adds nothing.
func (r *Resolver) locations(startDir string) []location {
	chain := walkUp(absDir(startDir))
	homeChain := walkUp(absDir(r.opts.HomeDir))

	onChain := make(map[string]bool, len(chain))
	for _, dir := range chain {
		onChain[dir] = true
	}
	var shared, homeOnly []string
	for _, dir := range homeChain {
		if onChain[dir] {
			shared = append(shared, dir)
		} else {
			homeOnly = append(homeOnly, dir)
		}
	}

	seen := make(map[string]bool, len(chain)+len(homeChain)+1)
	var locs []location
	add := func(root, path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		locs = append(locs, location{root: root, path: path})
	}

	if sys := absDir(r.opts.SystemDir); sys != "" {
		add(sys, filepath.Join(sys, r.opts.FileName))
	}
	for _, dirs := range [][]string{shared, homeOnly, chain} {
		for _, dir := range dirs {
			add(dir, r.dirPolicyPath(dir))
		}
	}
	return locs
}

// walkUp returns dir and its ancestors, filesystem root first.
func walkUp(dir string) []string {
	if dir == "" {
		return nil
	}
	var up []string
	for {
		up = append(up, dir)
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	for i, j := 0, len(up)-1; i < j; i, j = i+1, j-1 {
		up[i], up[j] = up[j], up[i]
	}
	return up
}

func (r *Resolver) dirPolicyPath(dir string) string {
	return filepath.Join(dir, r.opts.DirName, r.opts.FileName)
}

func absDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return ""
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	return filepath.Clean(abs)
}
