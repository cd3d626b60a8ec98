// Copyright © 2018 One Concern

package main

import "github.com/oneconcern/otarepo/cmd/otarepo/cmd"

func main() {
	cmd.Execute()
}
