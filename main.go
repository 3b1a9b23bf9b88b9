package main

import "github.com/storylinehq/publisher/cmd"

func main() {
	cmd.Execute()
}
