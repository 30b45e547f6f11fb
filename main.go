package main

import "github.com/Desjajja/o2a/cmd"

func main() {
	cmd.Execute()
}
