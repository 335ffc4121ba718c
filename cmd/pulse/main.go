package main

import (
	"github.com/mchmarny/pulse/pkg/cli"
)

func main() {
	cli.Execute()
}
