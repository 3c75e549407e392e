package main

import "github.com/bindery/novelbind/cmd"

func main() {
	cmd.Execute()
}
