// Package vm implements the adaptive execution core of the Kestrel
// engine: NaN-boxed values, dynamically-shaped objects with shared
// layouts, guarded dispatch with one-shot invalidation tokens,
// speculative arithmetic over a monotone representation lattice, and the
// bytecode chunks the code cache installs.
//
// The package keeps no ambient global state; everything is reached
// through an explicit *Context.
package vm
