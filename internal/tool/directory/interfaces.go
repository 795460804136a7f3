package directory

// pathResolver maps a tool path to its absolute and workspace-relative forms.
type pathResolver interface {
	Resolve(path string) (abs, rel string, err error)
}

// ignoreMatcher reports whether a workspace-relative path is gitignored.
type ignoreMatcher interface {
	Match(rel string, isDir bool) bool
}
