// Package registry provides the central "glue" between configuration
// documents and Go constructors.
//
// A Class pairs a name with a constructor func(P) (T, error) whose params
// struct P describes the keyword arguments (see package paramspec). Classes
// are registered either as members of a family, keyed by the interface they
// implement and the object_type tag documents use to select them, or as
// concrete classes keyed by their result type.
//
// During application startup, the registry is populated by each Module and
// then validated so that every params struct is readable before any
// document is built.
package registry
