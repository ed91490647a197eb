package main

import "github.com/bloghq/apiserver/cmd"

func main() {
	cmd.Execute()
}
