package main

import (
	"os"

	"github.com/superclaude/engine/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
