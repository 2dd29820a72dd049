package main

import "github.com/Distortions81/ripple-field/cmd"

func main() {
	cmd.Execute()
}
