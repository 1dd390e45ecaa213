//go:build !unix

package service

import (
	"os"
	"os/exec"
)

func setProcAttr(*exec.Cmd) {}

// There are no process groups to signal, both steps kill the worker.
func terminate(p *os.Process) error { return p.Kill() }
func kill(p *os.Process) error      { return p.Kill() }

// Not detectable without side effects, the exit state settles a late Cancel.
func reaped(*os.Process) bool { return false }

func signalName(*os.ProcessState) string { return "" }
