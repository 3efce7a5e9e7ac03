// Package condition implements the rule condition language: comparisons
// between a state field and a literal joined with && and ||, with at most two
// levels of parentheses.
//
// Conditions are compiled once, when a policy is admitted, into a Program of
// bounded size. Evaluating a Program performs a fixed amount of work, does not
// allocate, and never fails: a comparison that cannot be evaluated is false
// and is reported as an Anomaly.
//
//	prog, err := condition.Compile("total_memory > 4096 || crypto_algorithm == 'other'")
//	if err != nil {
//	    return err
//	}
//	matched, anomaly := prog.Eval(&snapshot)
package condition
