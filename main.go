package main

import "github.com/retailpulse/trends-etl/cmd"

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cmd.Execute(Version)
}
