package main

import "polyindex/cmd"

func main() {
	cmd.Execute()
}
