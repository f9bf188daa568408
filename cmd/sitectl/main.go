package main

import (
	"os"

	sitectlcmd "github.com/diaspora-enterprise/website/pkg/sitectl/cmd"
)

func main() {
	root := sitectlcmd.NewRootCommand(sitectlcmd.DefaultConfig())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
