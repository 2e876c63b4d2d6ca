package main

import "amici-chat/cmd"

func main() {
	cmd.Execute()
}
