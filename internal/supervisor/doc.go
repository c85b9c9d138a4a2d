// Package supervisor implements the privileged parent process. It
// parses the configuration, spawns the engine and frontend children
// with exactly one inherited socketpair endpoint each, hands the
// children their direct channel to one another, distributes the
// configuration, owns the kernel notification monitor, and winds
// everything down on shutdown.
package supervisor
