package main

import (
	"github.com/robotalks/fxlink/pkg/cli/sh"
	"github.com/robotalks/fxlink/pkg/env"

	_ "github.com/robotalks/fxlink/pkg/cli/cmds/registers"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
