package main

import "github.com/toronlabs/toron_backend/cmd"

func main() {
	cmd.Execute()
}
