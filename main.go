package main

import "github.com/schemashift/schemashift/cmd"

func main() {
	cmd.Execute()
}
