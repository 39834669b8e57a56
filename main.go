package main

import "github.com/agentic-research/rowcast/cmd"

func main() {
	cmd.Execute()
}
