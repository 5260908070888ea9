package main

import "github.com/jmehdipour/sms-inbox/cmd"

func main() {
	cmd.Execute()
}
