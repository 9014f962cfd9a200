package main

import "github.com/jclassvm/jclassvm/cmd/jclassvm/cmd"

func main() {
	cmd.Execute()
}
