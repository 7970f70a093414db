package main

import "github.com/mihaisavezi/endpoint-proxy/cmd"

func main() {
	cmd.Execute()
}
