package main

import (
	"github.com/robotalks/radiolink/pkg/cli/sh"
	"github.com/robotalks/radiolink/pkg/config"

	_ "github.com/robotalks/radiolink/pkg/cli/cmds/radio"
)

//go-build: CGO_ENABLED=0

func init() {
	config.SetupFlags()
}

func main() {
	sh.Main()
}
