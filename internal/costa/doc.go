// Package costa is the stage execution core of a pipeline run.
//
// A pipeline has a data-source stage, a chain of data-flow stages and a model
// stage, each backed by a plugin script. Costa loads the entry point of every
// script, builds one ExecutionContext that lets scripts import modules from the
// managed (script) and native package ecosystems, and calls the stages in
// order while passing the dataset handle along.
package costa
