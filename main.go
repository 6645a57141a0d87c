package main

import "github.com/nodewerx/tappi-go/cmd"

func main() {
	cmd.Execute()
}
