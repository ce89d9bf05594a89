package main

import "github.com/mzyy94/airsane/cmd/airsane/cmd"

func main() {
	cmd.Execute()
}
