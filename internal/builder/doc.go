/*
Package builder turns a Variable tree into constructed Go values.

The builder walks a Definition against the params struct of its target class
(see package paramspec) and produces one instance per combination of sweep
branches. Construction runs in three phases:

 1. Validation: the Definition must name every required parameter and
    nothing else. This happens before any constructor is called.

 2. Expansion: the fields are resolved in declaration order. Each resolved
    field either binds one value on every candidate (the "frontier") or, when
    it is a sweep, replaces every candidate with one copy per branch. The
    frontier is iterated in the outer loop and the branches in the inner
    loop, so for

	{"inner": {"a": {"*": [1, 2]}}, "b": {"*": [10, 20]}}

    the candidates come out as a1b10, a1b20, a2b10, a2b20.

 3. Construction: every candidate's params struct is populated (defaults
    first, then bound values) and passed to the constructor. Instances that
    implement ExperimentalVarsSetter receive the parameters that varied for
    them.

Candidates are persistent binding lists: a fan-out prepends to a shared tail
instead of copying, so branches never alias each other's state.
*/
package builder
