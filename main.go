package main

import (
	"github.com/sbomtools/sbomdiff/cmd"
)

func main() {
	cmd.Execute()
}
