// Package language holds the static table that maps a language identifier to
// the command launching it inside the sandbox image and the path the source
// code is written to.
//
// The table is built once at process start and is read-only afterwards.
// Aliases such as "py" and "python" resolve to identical specs.
//
// Usage:
//
//	spec, err := language.Default().Lookup("python")
//	if errors.Is(err, language.ErrUnknownLanguage) {
//	    // reject before any sandbox is created
//	}
package language
