// Package marker parses and evaluates PEP 508 environment markers.
//
// A marker is parsed into a small expression tree of [Compare], [And] and
// [Or] nodes over [Literal] and [Variable] values. Evaluation never fails:
// variables missing from the [Environment] resolve to "", and comparisons
// between values that are not both PEP 440 versions fall back to string
// comparison.
//
//	m, err := marker.Parse(`python_version >= "3.8" and sys_platform == "linux"`)
//	if err != nil {
//	    return err
//	}
//	ok := marker.Evaluate(m, marker.Env{"python_version": "3.10", "sys_platform": "linux"})
//
// The extra variable is special: it is bound to a comma-joined list of the
// extras being resolved, and extra == "name" holds when any of them matches.
package marker
