package main

import "aidigest/cmd"

func main() {
	cmd.Execute()
}
