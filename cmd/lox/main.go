// Command lox runs Lox scripts and bytecode images, or starts a REPL.
package main

import (
	"os"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
