package main

import "github.com/Shivansh-Atwal/trackstack/cmd"

func main() {
	cmd.Execute()
}
