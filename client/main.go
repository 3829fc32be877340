package main

import (
	"github.com/simkit/rollout-engine/client/cmd"
)

func main() {
	cmd.Execute()
}
