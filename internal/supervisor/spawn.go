package supervisor

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// socketPair creates a stream socketpair for parent/child IPC. Both
// ends carry close-on-exec; os/exec clears it on the end it passes to
// the child.
func socketPair() ([2]int, error) {
	var pair [2]int
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return pair, fmt.Errorf("supervisor: socketpair: %w", err)
	}
	pair[0], pair[1] = fds[0], fds[1]
	return pair, nil
}

// spawnChild re-executes this binary with a role flag. The child
// inherits exactly one descriptor, its parent channel, as fd 3.
func spawnChild(executable string, roleFlag string, extra []string, childFD int) (*exec.Cmd, error) {
	args := append([]string{roleFlag}, extra...)
	cmd := exec.Command(executable, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	f := os.NewFile(uintptr(childFD), "ipc")
	cmd.ExtraFiles = []*os.File{f}

	if err := cmd.Start(); err != nil {
		f.Close()
		return nil, fmt.Errorf("supervisor: start %s child: %w", roleFlag, err)
	}
	// The child holds its own copy now.
	f.Close()
	return cmd, nil
}

// waitChild reaps one child and reports how it went.
func waitChild(role string, cmd *exec.Cmd) (string, bool) {
	err := cmd.Wait()
	if err == nil {
		return "", false
	}
	if ee, ok := err.(*exec.ExitError); ok {
		if ws, ok := ee.Sys().(unix.WaitStatus); ok && ws.Signaled() {
			return fmt.Sprintf("%s child terminated by signal %d (%s)",
				role, ws.Signal(), unix.SignalName(ws.Signal())), true
		}
		return fmt.Sprintf("%s child exited abnormally: %v", role, ee), true
	}
	return fmt.Sprintf("%s child: wait: %v", role, err), true
}
