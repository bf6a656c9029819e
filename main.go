package main

import "videotube/cmd"

func main() {
	cmd.Execute()
}
