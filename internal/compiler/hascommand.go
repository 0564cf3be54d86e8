package compiler

import "os/exec"

func hasCommand(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
