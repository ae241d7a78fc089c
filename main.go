// Entrypoint for the collsim CLI; hands off to the Cobra root command in cmd/root.go.

package main

import (
	"github.com/collsim/collsim/cmd"
)

func main() {
	cmd.Execute()
}
