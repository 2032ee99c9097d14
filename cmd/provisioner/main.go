// Copyright © 2018 One Concern

package main

import (
	"github.com/oneconcern/provisioner/cmd/provisioner/cmd"
)

func main() {
	cmd.Execute()
}
