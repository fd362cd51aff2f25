package main

import "porter/cmd"

func main() {
	cmd.Execute()
}
