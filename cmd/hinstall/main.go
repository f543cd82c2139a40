package main

import (
	"os"

	"github.com/Hierosoft/hierosoft/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
