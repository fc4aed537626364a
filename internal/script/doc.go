// Package script runs managed plugin scripts. It hosts an ECMAScript runtime
// with a CommonJS module loader, resolves managed module ids against search
// path lists and turns script exports into stage entry points.
package script
