package main

import "github.com/kilnbuild/kiln/cmd"

func main() {
	cmd.Execute()
}
