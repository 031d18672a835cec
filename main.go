package main

import "github.com/kozaktomas/reid/cmd"

func main() {
	cmd.Execute()
}
