package main

import "github.com/relloyd/casepipe/cmd"

func main() {
	cmd.Execute()
}
