package main

import "github.com/dayuer/charbot-go/cmd"

func main() {
	cmd.Execute()
}
