// Package engine owns the registries of reactive entities and drives
// checkpoint, recovery and unload sessions against a storage.Store.
//
// Layout of the state store:
//
//	<kind category>/<uri>      definition of every entity
//	<kind category>.state/<uri> operator state of runtime entities
//
// Each item is one checkpoint blob: header, one frame, footer. Templates
// are written and recovered first so templatized definitions resolve.
//
// Differential checkpoints write only entities never committed before and
// operators whose state changed, and delete items of undefined entities.
// Operators learn their state was saved only after the commit succeeded.
package engine
