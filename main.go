package main

import "github.com/kozaktomas/photo-groups/cmd"

func main() {
	cmd.Execute()
}
