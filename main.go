package main

import "github.com/frahmantamala/table-reservation/cmd"

func main() {
	cmd.Execute()
}
