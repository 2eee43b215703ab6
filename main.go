package main

import "github.com/lumenworks/gemgate/cmd"

func main() {
	cmd.Execute()
}
