package main

import "github.com/markb/pagelift/cmd"

func main() {
	cmd.Execute()
}
