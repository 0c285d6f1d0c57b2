// Package sandbox provides secure code execution capabilities.
//
// The sandbox package implements the execution engine for running untrusted
// code in single-use containers. Every container is created from one image
// with networking disabled and auto-remove enabled, and no volumes.
//
// A run goes through these steps in order:
//
//	provision -> inject -> attach -> start -> drain -> reap
//
// Attaching before start keeps early output from being lost. The reap step
// always runs once a container exists, and its failure never changes the
// reported result. Any other failure is reported as a *RunError naming the
// stage, and no partial output is returned.
//
// The Executor has no per-chunk timeout. Runaway programs are bounded by the
// timeout wrapper in the launch command and by the caller's context.
//
// Usage:
//
//	rt, err := sandbox.NewDockerRuntime(logger, "")
//	executor := sandbox.NewExecutor(logger, language.Default(), rt)
//	output, err := executor.Execute(ctx, sandbox.Request{
//	    Language: "python",
//	    Code:     "print('Hello, World!')",
//	})
package sandbox
