// Package log provides simple leveled logging for newd.
//
// It implements a lightweight logging system with colored output and
// support for different log levels: DEBUG, INFO, WARN, and ERROR.
// Because newd runs as three cooperating processes sharing one terminal,
// every process tags its output with a process-name prefix set once at
// startup via SetProcess.
//
// Basic logging:
//
//	log.Infof("startup")
//	log.Warnf("failed to add route [%v]: %v", route, err)
//
// Enabling verbose mode for debug output:
//
//	log.SetVerbose(true)
//	log.Debugf("proposal: %+v", p)
//
// Fatal errors that exit the process:
//
//	if err != nil {
//	    log.Fatalf("routing socket: %v", err) // Exits with code 1
//	}
package log
