package main

import (
	"os"

	"github.com/nordstat/pxfetch/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
