// Command goexpect drives interactive programs through a PTY, either from a
// YAML script, or by handing the terminal over to the user.
//
//	goexpect run --script login.yaml -- ssh host
//	goexpect interact --escape ctrl+] -- bash
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "goexpect:", err)
		os.Exit(exitCode(err))
	}
}
