package main

import (
	"github.com/comfy-mcp/comfy-mcp/internal/cli"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cli.Execute(cli.CreateRootCommand(&cli.CommandConfig{
		Version:   Version,
		BuildTime: BuildTime,
	}))
}
