package main

import "shakti-alert-backend/cmd"

func main() {
	cmd.Run()
}
