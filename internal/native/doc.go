// Package native imports packages of the native ecosystem. A package is a
// directory under the native root holding a package.yml manifest; it is
// backed either by an implementation compiled into the process or by a
// package host reached over gRPC.
package native
