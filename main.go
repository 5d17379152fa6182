package main

import "github.com/regscan/crawler/cmd"

func main() {
	cmd.Execute()
}
