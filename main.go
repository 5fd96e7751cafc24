package main

import "github.com/markdocs/docrunner/cmd"

func main() {
	cmd.Execute()
}
