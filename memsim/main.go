// Package main runs the memsim command-line tool.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/memsim/memsim/cmd"
)

func main() {
	cmd.Execute()
	atexit.Exit(0)
}
